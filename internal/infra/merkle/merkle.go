package merkle

import (
	"crypto/sha256"
	"errors"

	"vcpproof/internal/domain"
)

const HashSize = domain.HashSize

// Domain separation prefixes from RFC 6962 section 2.1.
const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

var (
	ErrEmptyTree    = errors.New("empty merkle tree")
	ErrInvalidIndex = errors.New("invalid leaf index")
)

// LeafHash returns SHA-256(0x00 || data).
func LeafHash(data []byte) domain.Hash {
	hasher := sha256.New()
	hasher.Write([]byte{leafPrefix})
	hasher.Write(data)
	var out domain.Hash
	hasher.Sum(out[:0])
	return out
}

// NodeHash returns SHA-256(0x01 || left || right).
func NodeHash(left, right domain.Hash) domain.Hash {
	hasher := sha256.New()
	hasher.Write([]byte{nodePrefix})
	hasher.Write(left[:])
	hasher.Write(right[:])
	var out domain.Hash
	hasher.Sum(out[:0])
	return out
}

// Root computes the tree hash over leaf hashes. Levels are built bottom-up;
// the last node of a level with an odd count is paired with itself.
func Root(leaves []domain.Hash) (domain.Hash, error) {
	if len(leaves) == 0 {
		return domain.Hash{}, ErrEmptyTree
	}
	level := leaves
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0], nil
}

// InclusionProof returns the audit path for leaves[leafIndex], one sibling per
// level from the leaf up to the root. A promoted last node gets itself as its
// sibling.
func InclusionProof(leaves []domain.Hash, leafIndex uint64) ([]domain.Hash, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	if leafIndex >= uint64(len(leaves)) {
		return nil, ErrInvalidIndex
	}
	path := make([]domain.Hash, 0)
	index := int(leafIndex)
	level := leaves
	for len(level) > 1 {
		switch {
		case index%2 == 1:
			path = append(path, level[index-1])
		case index+1 < len(level):
			path = append(path, level[index+1])
		default:
			path = append(path, level[index])
		}
		level = nextLevel(level)
		index /= 2
	}
	return path, nil
}

func nextLevel(level []domain.Hash) []domain.Hash {
	next := make([]domain.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		right := level[i]
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, NodeHash(level[i], right))
	}
	return next
}
