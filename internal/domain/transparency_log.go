package domain

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const HashSize = 32

// Hash is a SHA-256 digest: a leaf hash, an interior node or a tree root.
type Hash [HashSize]byte

func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, ErrInvalidHashLen
	}
	copy(h[:], b)
	return h, nil
}

func HashFromBase64(s string) (Hash, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("decode base64 hash: %w", err)
	}
	return HashFromBytes(raw)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Base64() string {
	return base64.StdEncoding.EncodeToString(h[:])
}

// InclusionClaim is what an untrusted proof document asserts about one leaf.
type InclusionClaim struct {
	LeafIndex uint64
	TreeSize  uint64
	RootHash  Hash
	AuditPath []Hash
}

// TreeHead is the size and root of a log at one point in time.
type TreeHead struct {
	LogID    string
	TreeSize uint64
	RootHash Hash
	IssuedAt time.Time
}
