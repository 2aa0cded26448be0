package merkle

import (
	"crypto/subtle"

	"vcpproof/internal/domain"
)

// MaxPathLen bounds the audit path: 64 levels already cover 2^64 leaves.
const MaxPathLen = 64

// RootFromInclusionProof folds path over leafHash for the leaf at leafIndex of
// a tree with treeSize leaves and returns the resulting root.
//
// Every level above the leaves consumes exactly one sibling. An odd index is a
// right child and combines as H(sibling, node); an even index, including the
// last node of a level with no right neighbour, combines as H(node, sibling).
func RootFromInclusionProof(leafHash domain.Hash, leafIndex, treeSize uint64, path []domain.Hash) (domain.Hash, error) {
	if treeSize == 0 {
		return domain.Hash{}, &domain.InvalidTreeError{LeafIndex: leafIndex, TreeSize: treeSize, Reason: "tree size must be at least 1"}
	}
	if leafIndex >= treeSize {
		return domain.Hash{}, &domain.InvalidTreeError{LeafIndex: leafIndex, TreeSize: treeSize, Reason: "leaf index out of range"}
	}
	if len(path) > MaxPathLen {
		return domain.Hash{}, &domain.MalformedProofError{PathLen: len(path), Reason: "audit path exceeds 64 levels"}
	}
	if treeSize == 1 {
		if len(path) != 0 {
			return domain.Hash{}, &domain.MalformedProofError{PathLen: len(path), Reason: "single-leaf tree admits no siblings"}
		}
		return leafHash, nil
	}

	node := leafHash
	index, size := leafIndex, treeSize
	used := 0
	for size > 1 {
		if used == len(path) {
			return domain.Hash{}, exhausted(len(path))
		}
		if index%2 == 1 {
			node = NodeHash(path[used], node)
		} else {
			node = NodeHash(node, path[used])
		}
		used++
		index /= 2
		size = size/2 + size%2
	}
	if used != len(path) {
		return domain.Hash{}, &domain.MalformedProofError{PathLen: len(path), Reason: "siblings remain after reaching the root"}
	}
	return node, nil
}

func exhausted(pathLen int) error {
	return &domain.MalformedProofError{PathLen: pathLen, Reason: "audit path ends before reaching the root"}
}

// VerifyInclusion recomputes the root for claim and compares it with the
// claimed root. It returns the computed root alongside domain.ErrRootMismatch
// when the proof is well formed but does not chain to the claimed root.
func VerifyInclusion(leafHash domain.Hash, claim domain.InclusionClaim) (domain.Hash, error) {
	computed, err := RootFromInclusionProof(leafHash, claim.LeafIndex, claim.TreeSize, claim.AuditPath)
	if err != nil {
		return domain.Hash{}, err
	}
	if subtle.ConstantTimeCompare(computed[:], claim.RootHash[:]) != 1 {
		return computed, domain.ErrRootMismatch
	}
	return computed, nil
}

// VerifyInclusionData hashes raw canonical bytes into a leaf before verifying.
func VerifyInclusionData(leafData []byte, claim domain.InclusionClaim) (domain.Hash, error) {
	return VerifyInclusion(LeafHash(leafData), claim)
}
