package usecase

import (
	"context"

	"vcpproof/internal/domain"
)

type CryptoService interface {
	Canonicalize(v domain.Value) ([]byte, error)
}

type MerkleService interface {
	LeafHash(data []byte) domain.Hash
	VerifyInclusion(leafHash domain.Hash, claim domain.InclusionClaim) (domain.Hash, error)
}

type TransparencyLog interface {
	AppendLeaf(ctx context.Context, logID string, leafHash domain.Hash) (leafIndex uint64, head domain.TreeHead, err error)
	Prove(ctx context.Context, logID string, leafHash domain.Hash) (claim domain.InclusionClaim, head domain.TreeHead, err error)
}
