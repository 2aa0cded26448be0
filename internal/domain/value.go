package domain

import (
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is the closed set of shapes a record may take before canonicalization.
// Only the types in this file implement it.
type Value interface {
	value()
}

type Null struct{}

type Bool bool

type Integer int64

type Float float64

type String string

type Sequence []Value

// Map is a string-keyed object. Build it with NewMap when the input may carry
// repeated keys; a Go map literal cannot.
type Map map[string]Value

func (Null) value()     {}
func (Bool) value()     {}
func (Integer) value()  {}
func (Float) value()    {}
func (String) value()   {}
func (Sequence) value() {}
func (Map) value()      {}

// Pair is one key/value entry used to construct a Map.
type Pair struct {
	Key   string
	Value Value
}

func P(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// NewMap builds a Map from pairs and fails on a repeated key.
func NewMap(pairs ...Pair) (Map, error) {
	m := make(Map, len(pairs))
	for _, p := range pairs {
		if _, ok := m[p.Key]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, p.Key)
		}
		m[p.Key] = p.Value
	}
	return m, nil
}

// SortedKeys returns the keys ordered by UTF-16 code units.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareUTF16)
	return keys
}

// CompareUTF16 orders strings by their UTF-16 code unit sequences. Byte order
// and code point order disagree with it for characters outside the BMP.
func CompareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
