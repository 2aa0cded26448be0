package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"vcpproof/internal/domain"
	"vcpproof/internal/infra/crypto"
	"vcpproof/internal/infra/proofdoc"
	"vcpproof/internal/usecase"
)

const maxMockRecords = 1024

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type canonicalizeResponse struct {
	Canonical       string `json:"canonical"`
	CanonicalSHA256 string `json:"canonical_sha256"`
	LeafHash        string `json:"leaf_hash"`
}

type verifyRequest struct {
	Event json.RawMessage `json:"event"`
	Proof json.RawMessage `json:"proof"`
}

type verifyResponse struct {
	Verdict      domain.Verdict `json:"verdict"`
	Valid        bool           `json:"valid"`
	LeafHash     string         `json:"leaf_hash,omitempty"`
	ComputedRoot string         `json:"computed_root,omitempty"`
	LeafIndex    uint64         `json:"leaf_index"`
	TreeSize     uint64         `json:"tree_size"`
	Error        string         `json:"error,omitempty"`
}

type mockProofRequest struct {
	Records []json.RawMessage `json:"records"`
}

type mockProofResponse struct {
	Proofs []*proofdoc.Document `json:"proofs"`
}

func (s *Server) handleCanonicalize(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	record, err := crypto.ParseJSON(body)
	if err != nil {
		writeParseError(c, err)
		return
	}
	digests, err := crypto.DigestRecord(record)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, canonicalizeResponse{
		Canonical:       string(digests.Canonical),
		CanonicalSHA256: digests.CanonicalSHA256.Base64(),
		LeafHash:        digests.LeafHash.Base64(),
	})
}

func (s *Server) handleVerify(c *gin.Context) {
	if s.verifyUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Event) == 0 || len(req.Proof) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "event and proof are required")
		return
	}

	record, err := crypto.ParseJSON(req.Event)
	if err != nil {
		writeParseError(c, err)
		return
	}
	doc, err := proofdoc.Decode(req.Proof)
	if err != nil {
		writeError(c, err)
		return
	}
	claim, err := doc.TransparencyAnchor.Claim()
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := s.verifyUC.Execute(c.Request.Context(), record, claim)
	if isContextError(err) {
		writeError(c, err)
		return
	}
	out := buildVerifyResponse(result, err)
	status := http.StatusOK
	if err != nil && !errors.Is(err, domain.ErrRootMismatch) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, out)
}

func (s *Server) handleMockProof(c *gin.Context) {
	if s.mockUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req mockProofRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Records) > maxMockRecords {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "too many records")
		return
	}

	records := make([]domain.Value, 0, len(req.Records))
	for _, raw := range req.Records {
		record, err := crypto.ParseJSON(raw)
		if err != nil {
			writeParseError(c, err)
			return
		}
		records = append(records, record)
	}

	proofs, err := s.mockUC.Generate(c.Request.Context(), records...)
	if err != nil {
		writeError(c, err)
		return
	}
	out := mockProofResponse{Proofs: make([]*proofdoc.Document, 0, len(proofs))}
	for _, p := range proofs {
		out.Proofs = append(out.Proofs, buildMockDocument(p))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func buildVerifyResponse(result *domain.VerificationResult, err error) verifyResponse {
	out := verifyResponse{
		Verdict:   result.Verdict,
		Valid:     result.Valid(),
		LeafIndex: result.LeafIndex,
		TreeSize:  result.TreeSize,
	}
	if result.LeafHash != (domain.Hash{}) {
		out.LeafHash = result.LeafHash.Base64()
	}
	if result.ComputedRoot != nil {
		out.ComputedRoot = result.ComputedRoot.Base64()
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func buildMockDocument(p usecase.MockProof) *proofdoc.Document {
	return &proofdoc.Document{
		TransparencyAnchor: proofdoc.NewAnchor(p.BackendType, p.LogID, p.Claim, p.IssuedAt.UnixNano()),
		Debug:              proofdoc.NewDebug(p.Canonical, p.CanonicalSHA256, p.LeafHash),
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, err)
		return false
	}
	if _, err := crypto.ParseJSON(body); err != nil {
		writeParseError(c, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return false
	}
	return true
}

func writeParseError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrEncoding) || errors.Is(err, domain.ErrDuplicateKey) {
		writeError(c, err)
		return
	}
	writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		status, code = http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE"
	case errors.Is(err, domain.ErrInvalidProof):
		status, code = http.StatusBadRequest, "INVALID_PROOF"
	case errors.Is(err, usecase.ErrNoRecords):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrEncoding), errors.Is(err, domain.ErrDuplicateKey):
		status, code = http.StatusUnprocessableEntity, "ENCODING_ERROR"
	case errors.Is(err, domain.ErrInvalidTree):
		status, code = http.StatusUnprocessableEntity, "INVALID_TREE"
	case errors.Is(err, domain.ErrMalformedProof):
		status, code = http.StatusUnprocessableEntity, "MALFORMED_PROOF"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		status, code = http.StatusServiceUnavailable, "CANCELED"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
