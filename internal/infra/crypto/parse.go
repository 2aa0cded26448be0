package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"vcpproof/internal/domain"
)

// maxDepth bounds nesting so adversarial documents cannot exhaust the stack.
const maxDepth = 512

// CanonicalizeJSON parses a JSON document and returns its canonical bytes.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	v, err := ParseJSON(input)
	if err != nil {
		return nil, err
	}
	return Canonicalize(v)
}

// ParseJSON decodes exactly one JSON document into a Value. Objects with a
// repeated key are rejected rather than resolved last-wins. Invalid UTF-8 and
// unpaired surrogate escapes are encoding errors; encoding/json would
// otherwise turn both into U+FFFD.
func ParseJSON(input []byte) (domain.Value, error) {
	if !utf8.Valid(input) {
		return nil, &domain.EncodingError{Value: invalidUTF8Prefix(input), Reason: "input is not valid UTF-8"}
	}
	if err := checkSurrogateEscapes(input); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	v, err := decodeValue(dec, 0)
	if err != nil {
		return nil, err
	}
	if err := ensureEOF(dec); err != nil {
		return nil, err
	}
	return v, nil
}

func invalidUTF8Prefix(input []byte) string {
	for i := 0; i < len(input); {
		r, size := utf8.DecodeRune(input[i:])
		if r == utf8.RuneError && size <= 1 {
			end := i + 8
			if end > len(input) {
				end = len(input)
			}
			return fmt.Sprintf("%q", input[i:end])
		}
		i += size
	}
	return ""
}

// checkSurrogateEscapes walks the string literals of input and rejects any
// \uD800-\uDFFF escape that is not a high surrogate followed by a low one.
// Malformed escapes are left for the decoder to report.
func checkSurrogateEscapes(input []byte) error {
	inString := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			continue
		}
		switch c {
		case '"':
			inString = false
		case '\\':
			r, ok := unicodeEscape(input, i)
			if !ok {
				i++
				continue
			}
			if !utf16.IsSurrogate(r) {
				i += 5
				continue
			}
			low, ok := unicodeEscape(input, i+6)
			if r >= 0xDC00 || !ok || low < 0xDC00 || low > 0xDFFF {
				return &domain.EncodingError{Value: string(input[i : i+6]), Reason: "unpaired UTF-16 surrogate escape"}
			}
			i += 11
		}
	}
	return nil
}

// unicodeEscape reads a \uXXXX escape starting at input[at].
func unicodeEscape(input []byte, at int) (rune, bool) {
	if at+6 > len(input) || input[at] != '\\' || input[at+1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(input[at+2:at+6]), 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

func ensureEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return errors.New("invalid JSON: trailing data")
}

func decodeValue(dec *json.Decoder, depth int) (domain.Value, error) {
	if depth > maxDepth {
		return nil, errors.New("invalid JSON: nesting too deep")
	}
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("invalid JSON: unexpected end of input")
		}
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	switch t := tok.(type) {
	case nil:
		return domain.Null{}, nil
	case bool:
		return domain.Bool(t), nil
	case string:
		return domain.String(t), nil
	case json.Number:
		return numberValue(t)
	case json.Delim:
		switch t {
		case '[':
			seq := domain.Sequence{}
			for dec.More() {
				item, err := decodeValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				seq = append(seq, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}
			return seq, nil
		case '{':
			obj := domain.Map{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("invalid JSON: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("invalid JSON: object key %v is not a string", keyTok)
				}
				if _, dup := obj[key]; dup {
					return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateKey, key)
				}
				item, err := decodeValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				obj[key] = item
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}
			return obj, nil
		}
	}
	return nil, fmt.Errorf("invalid JSON: unexpected token %v", tok)
}

// numberValue keeps integer literals that fit int64 exact and sends every
// other number through float64, as a JSON Number parser would.
func numberValue(n json.Number) (domain.Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return domain.Integer(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &domain.EncodingError{Value: s, Reason: "number out of float64 range"}
	}
	return domain.Float(f), nil
}

// FromAny converts values produced by encoding/json (or built by hand with
// the same shapes) into the closed Value set.
func FromAny(v any) (domain.Value, error) {
	switch val := v.(type) {
	case nil:
		return domain.Null{}, nil
	case domain.Value:
		return val, nil
	case bool:
		return domain.Bool(val), nil
	case string:
		return domain.String(val), nil
	case json.Number:
		return numberValue(val)
	case int:
		return domain.Integer(val), nil
	case int8:
		return domain.Integer(val), nil
	case int16:
		return domain.Integer(val), nil
	case int32:
		return domain.Integer(val), nil
	case int64:
		return domain.Integer(val), nil
	case uint8:
		return domain.Integer(val), nil
	case uint16:
		return domain.Integer(val), nil
	case uint32:
		return domain.Integer(val), nil
	case uint:
		return uintValue(uint64(val))
	case uint64:
		return uintValue(val)
	case float32:
		return domain.Float(val), nil
	case float64:
		return domain.Float(val), nil
	case []any:
		seq := make(domain.Sequence, len(val))
		for i, item := range val {
			conv, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			seq[i] = conv
		}
		return seq, nil
	case map[string]any:
		obj := make(domain.Map, len(val))
		for k, item := range val {
			conv, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, &domain.EncodingError{Value: v, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

func uintValue(u uint64) (domain.Value, error) {
	if u > math.MaxInt64 {
		return nil, &domain.EncodingError{Value: u, Reason: "unsigned integer exceeds int64"}
	}
	return domain.Integer(int64(u)), nil
}
