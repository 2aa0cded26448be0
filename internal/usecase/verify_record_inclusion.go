package usecase

import (
	"context"
	"errors"

	"vcpproof/internal/domain"
)

type VerifyRecordInclusion struct {
	Crypto CryptoService
	Merkle MerkleService
}

// Execute canonicalizes record, hashes it as a leaf and checks claim against
// it. The returned result is always populated as far as verification got;
// the error is nil only for an accepted proof and otherwise carries the
// reason, which domain.VerdictFromError categorizes.
func (uc *VerifyRecordInclusion) Execute(ctx context.Context, record domain.Value, claim domain.InclusionClaim) (*domain.VerificationResult, error) {
	result := &domain.VerificationResult{
		LeafIndex: claim.LeafIndex,
		TreeSize:  claim.TreeSize,
	}
	if err := ctx.Err(); err != nil {
		result.Verdict = domain.VerdictInvalidInput
		return result, err
	}

	canonical, err := uc.Crypto.Canonicalize(record)
	if err != nil {
		result.Verdict = domain.VerdictFromError(err)
		return result, err
	}
	result.LeafHash = uc.Merkle.LeafHash(canonical)

	computed, err := uc.Merkle.VerifyInclusion(result.LeafHash, claim)
	if err == nil || errors.Is(err, domain.ErrRootMismatch) {
		result.ComputedRoot = &computed
	}
	result.Verdict = domain.VerdictFromError(err)
	return result, err
}
