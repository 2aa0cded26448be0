package domain

import "errors"

// Verdict is the category of a verification outcome.
type Verdict string

const (
	VerdictAccepted       Verdict = "accepted"
	VerdictRootMismatch   Verdict = "root_mismatch"
	VerdictMalformedProof Verdict = "malformed_proof"
	VerdictInvalidTree    Verdict = "invalid_tree"
	VerdictEncodingError  Verdict = "encoding_error"
	VerdictInvalidInput   Verdict = "invalid_input"
)

// VerdictFromError maps a verification error onto its category. A nil error is
// an accepted proof.
func VerdictFromError(err error) Verdict {
	switch {
	case err == nil:
		return VerdictAccepted
	case errors.Is(err, ErrRootMismatch):
		return VerdictRootMismatch
	case errors.Is(err, ErrMalformedProof):
		return VerdictMalformedProof
	case errors.Is(err, ErrInvalidTree):
		return VerdictInvalidTree
	case errors.Is(err, ErrEncoding), errors.Is(err, ErrDuplicateKey):
		return VerdictEncodingError
	default:
		return VerdictInvalidInput
	}
}

// VerificationResult is what a caller surfaces after checking one record.
// ComputedRoot is nil when the proof was rejected before folding finished.
type VerificationResult struct {
	Verdict      Verdict
	LeafHash     Hash
	ComputedRoot *Hash
	LeafIndex    uint64
	TreeSize     uint64
}

func (r VerificationResult) Valid() bool {
	return r.Verdict == VerdictAccepted
}
