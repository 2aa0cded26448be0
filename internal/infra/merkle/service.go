package merkle

import "vcpproof/internal/domain"

type Service struct{}

func (s *Service) LeafHash(data []byte) domain.Hash {
	return LeafHash(data)
}

func (s *Service) VerifyInclusion(leafHash domain.Hash, claim domain.InclusionClaim) (domain.Hash, error) {
	return VerifyInclusion(leafHash, claim)
}
