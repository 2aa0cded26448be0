package usecase

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"vcpproof/internal/domain"
)

const MockBackendType = "mock"

var ErrNoRecords = errors.New("at least one record is required")

// MockProof is an inclusion proof issued by a throwaway in-memory log, with
// the digests that went into it.
type MockProof struct {
	BackendType     string
	LogID           string
	Claim           domain.InclusionClaim
	IssuedAt        time.Time
	Canonical       []byte
	CanonicalSHA256 domain.Hash
	LeafHash        domain.Hash
}

type MockProofGenerator struct {
	Crypto CryptoService
	Merkle MerkleService
	// NewLog returns an empty log for each Generate call.
	NewLog func() TransparencyLog
	LogID  string
	Clock  func() time.Time
}

// Generate appends every record to a fresh log and proves each one against
// the final tree head. A single record yields the one-leaf tree whose root is
// the leaf hash and whose audit path is empty. Identical records share a leaf.
func (g *MockProofGenerator) Generate(ctx context.Context, records ...domain.Value) ([]MockProof, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	clock := g.Clock
	if clock == nil {
		clock = time.Now
	}
	log := g.NewLog()

	proofs := make([]MockProof, 0, len(records))
	for _, record := range records {
		canonical, err := g.Crypto.Canonicalize(record)
		if err != nil {
			return nil, err
		}
		leaf := g.Merkle.LeafHash(canonical)
		if _, _, err := log.AppendLeaf(ctx, g.LogID, leaf); err != nil {
			return nil, err
		}
		proofs = append(proofs, MockProof{
			BackendType:     MockBackendType,
			LogID:           g.LogID,
			Canonical:       canonical,
			CanonicalSHA256: sha256.Sum256(canonical),
			LeafHash:        leaf,
		})
	}

	issuedAt := clock().UTC()
	for i := range proofs {
		claim, _, err := log.Prove(ctx, g.LogID, proofs[i].LeafHash)
		if err != nil {
			return nil, err
		}
		proofs[i].Claim = claim
		proofs[i].IssuedAt = issuedAt
	}
	return proofs, nil
}
