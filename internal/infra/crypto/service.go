package crypto

import (
	"crypto/sha256"

	"vcpproof/internal/domain"
	"vcpproof/internal/infra/merkle"
)

// Digests are the values a verifier or debugger needs for one record.
type Digests struct {
	Canonical       []byte
	CanonicalSHA256 domain.Hash
	LeafHash        domain.Hash
}

type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Canonicalize(v domain.Value) ([]byte, error) {
	return Canonicalize(v)
}

func (s *Service) ParseJSON(input []byte) (domain.Value, error) {
	return ParseJSON(input)
}

// ComputeLeafHash canonicalizes v and returns its RFC 6962 leaf hash.
func (s *Service) ComputeLeafHash(v domain.Value) (domain.Hash, error) {
	d, err := DigestRecord(v)
	if err != nil {
		return domain.Hash{}, err
	}
	return d.LeafHash, nil
}

func DigestRecord(v domain.Value) (Digests, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return Digests{}, err
	}
	return Digests{
		Canonical:       canonical,
		CanonicalSHA256: sha256.Sum256(canonical),
		LeafHash:        merkle.LeafHash(canonical),
	}, nil
}
