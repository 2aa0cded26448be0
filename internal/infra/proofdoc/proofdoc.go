// Package proofdoc reads and writes the JSON proof documents exchanged with
// transparency log backends.
package proofdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"vcpproof/internal/domain"
	"vcpproof/internal/infra/crypto"
)

// Document is a proof file. Older producers emit the anchor fields at the top
// level instead of under transparency_anchor; Decode accepts both.
type Document struct {
	TransparencyAnchor *Anchor `json:"transparency_anchor"`
	Debug              *Debug  `json:"debug,omitempty"`
}

type Anchor struct {
	BackendType    string         `json:"backend_type,omitempty"`
	LogID          string         `json:"log_id,omitempty"`
	LeafIndex      uint64         `json:"leaf_index"`
	TreeSize       uint64         `json:"tree_size"`
	RootHash       string         `json:"root_hash"`
	TimestampNanos int64          `json:"timestamp_nanos,omitempty"`
	InclusionProof InclusionProof `json:"inclusion_proof"`
}

type InclusionProof struct {
	Hashes []string `json:"hashes"`
}

// Debug carries intermediate digests so a failed verification can be
// diagnosed by hand. Verification never reads it.
type Debug struct {
	CanonicalJSON   string `json:"canonical_json"`
	CanonicalSHA256 string `json:"canonical_sha256"`
	LeafHash        string `json:"leaf_hash"`
}

var requiredAnchorFields = []string{"leaf_index", "tree_size", "root_hash"}

// Decode parses a proof document. Repeated keys are rejected the same way
// they are in records, so a second root_hash cannot override the first.
func Decode(data []byte) (*Document, error) {
	if _, err := crypto.ParseJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidProof, err)
	}
	var envelope struct {
		TransparencyAnchor json.RawMessage `json:"transparency_anchor"`
		Debug              *Debug          `json:"debug"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidProof, err)
	}

	raw := envelope.TransparencyAnchor
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = data
	}
	anchor, err := decodeAnchor(raw)
	if err != nil {
		return nil, err
	}
	return &Document{TransparencyAnchor: anchor, Debug: envelope.Debug}, nil
}

func decodeAnchor(raw []byte) (*Anchor, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: transparency_anchor: %w", domain.ErrInvalidProof, err)
	}
	for _, name := range requiredAnchorFields {
		if v, ok := fields[name]; !ok || bytes.Equal(v, []byte("null")) {
			return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidProof, name)
		}
	}

	var anchor Anchor
	if err := json.Unmarshal(raw, &anchor); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidProof, err)
	}
	return &anchor, nil
}

// Load reads and decodes the proof document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read proof %s", path)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode proof %s", path)
	}
	return doc, nil
}

// Claim converts the anchor into a typed inclusion claim. Hashes must be
// standard base64 of exactly 32 bytes.
func (a *Anchor) Claim() (domain.InclusionClaim, error) {
	if a == nil {
		return domain.InclusionClaim{}, fmt.Errorf("%w: missing transparency anchor", domain.ErrInvalidProof)
	}
	root, err := domain.HashFromBase64(a.RootHash)
	if err != nil {
		return domain.InclusionClaim{}, fmt.Errorf("%w: root_hash: %w", domain.ErrInvalidProof, err)
	}
	path := make([]domain.Hash, 0, len(a.InclusionProof.Hashes))
	for i, encoded := range a.InclusionProof.Hashes {
		h, err := domain.HashFromBase64(encoded)
		if err != nil {
			return domain.InclusionClaim{}, fmt.Errorf("%w: inclusion_proof.hashes[%d]: %w", domain.ErrInvalidProof, i, err)
		}
		path = append(path, h)
	}
	return domain.InclusionClaim{
		LeafIndex: a.LeafIndex,
		TreeSize:  a.TreeSize,
		RootHash:  root,
		AuditPath: path,
	}, nil
}

// NewAnchor renders a claim as an anchor with the given backend metadata.
func NewAnchor(backendType, logID string, claim domain.InclusionClaim, timestampNanos int64) *Anchor {
	hashes := make([]string, 0, len(claim.AuditPath))
	for _, h := range claim.AuditPath {
		hashes = append(hashes, h.Base64())
	}
	return &Anchor{
		BackendType:    backendType,
		LogID:          logID,
		LeafIndex:      claim.LeafIndex,
		TreeSize:       claim.TreeSize,
		RootHash:       claim.RootHash.Base64(),
		TimestampNanos: timestampNanos,
		InclusionProof: InclusionProof{Hashes: hashes},
	}
}

// NewDebug renders intermediate digests in the document's base64 form.
func NewDebug(canonical []byte, canonicalSHA256, leafHash domain.Hash) *Debug {
	return &Debug{
		CanonicalJSON:   string(canonical),
		CanonicalSHA256: canonicalSHA256.Base64(),
		LeafHash:        leafHash.Base64(),
	}
}

// Encode writes doc as two-space indented JSON without HTML escaping.
func Encode(doc *Document) ([]byte, error) {
	out, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	return encodeIndented(out)
}

// EncodeAll writes docs as a JSON array with the same layout as Encode.
func EncodeAll(docs []*Document) ([]byte, error) {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		n, err := normalize(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return encodeIndented(out)
}

func normalize(doc *Document) (Document, error) {
	if doc == nil || doc.TransparencyAnchor == nil {
		return Document{}, fmt.Errorf("%w: missing transparency anchor", domain.ErrInvalidProof)
	}
	out := *doc
	anchor := *doc.TransparencyAnchor
	if anchor.InclusionProof.Hashes == nil {
		anchor.InclusionProof.Hashes = []string{}
	}
	out.TransparencyAnchor = &anchor
	return out, nil
}

func encodeIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
