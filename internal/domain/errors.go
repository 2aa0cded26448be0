package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEncoding       = errors.New("encoding error")
	ErrDuplicateKey   = errors.New("duplicate map key")
	ErrInvalidTree    = errors.New("invalid tree")
	ErrMalformedProof = errors.New("malformed proof")
	ErrRootMismatch   = errors.New("computed root does not match claimed root")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidProof   = errors.New("invalid proof document")
	ErrNotFound       = errors.New("not found")
)

// EncodingError reports a value the canonicalizer cannot represent.
type EncodingError struct {
	Value  any
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: %s (value %#v)", e.Reason, e.Value)
}

func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

// InvalidTreeError reports a tree size of zero or a leaf index outside [0, size).
type InvalidTreeError struct {
	LeafIndex uint64
	TreeSize  uint64
	Reason    string
}

func (e *InvalidTreeError) Error() string {
	return fmt.Sprintf("invalid tree: %s (leaf_index=%d tree_size=%d)", e.Reason, e.LeafIndex, e.TreeSize)
}

func (e *InvalidTreeError) Is(target error) bool {
	return target == ErrInvalidTree
}

// MalformedProofError reports an audit path whose shape does not fit the tree.
type MalformedProofError struct {
	PathLen int
	Reason  string
}

func (e *MalformedProofError) Error() string {
	return fmt.Sprintf("malformed proof: %s (path_len=%d)", e.Reason, e.PathLen)
}

func (e *MalformedProofError) Is(target error) bool {
	return target == ErrMalformedProof
}
