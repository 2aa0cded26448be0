package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"vcpproof/internal/config"
	"vcpproof/internal/domain"
	"vcpproof/internal/infra/crypto"
	"vcpproof/internal/infra/logmem"
	"vcpproof/internal/infra/merkle"
	"vcpproof/internal/infra/proofdoc"
	"vcpproof/internal/infra/ratelimit"
	"vcpproof/internal/usecase"
)

const scenarioLeafB64 = "QAYPvmAP9p/igkMrq2BMUAtZ7WEARTJEy7JLswsgvnQ="

var fixedNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, errors.New("redis down")
}

func testConfig() config.Config {
	return config.Config{
		MaxBodyBytes: 1 << 20,
		MockLogID:    config.DefaultMockLogID,
	}
}

func newTestServer(t *testing.T, cfg config.Config, limiter domain.RateLimiter) (*Server, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	cryptoSvc := crypto.NewService()
	merkleSvc := &merkle.Service{}
	s := NewServerWithDeps(cfg, ServerDeps{
		Verify: &usecase.VerifyRecordInclusion{Crypto: cryptoSvc, Merkle: merkleSvc},
		Mock: &usecase.MockProofGenerator{
			Crypto: cryptoSvc,
			Merkle: merkleSvc,
			NewLog: func() usecase.TransparencyLog { return logmem.New() },
			LogID:  cfg.MockLogID,
			Clock:  func() time.Time { return fixedNow },
		},
		RateLimiter: limiter,
		Logger:      zap.New(core),
	})
	return s, logs
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthzAndRequestID(t *testing.T) {
	s, logs := newTestServer(t, testConfig(), nil)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := uuid.Parse(rec.Header().Get(headerRequestID))
	assert.NoError(t, err)

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/healthz", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, id)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(headerRequestID))
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nil)
	rec := doRequest(t, s, http.MethodGet, "/v1/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody[errorResponse](t, rec).Code)
}

func TestCanonicalize(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/canonicalize", `{"b": 2, "a": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[canonicalizeResponse](t, rec)
	assert.Equal(t, `{"a":1,"b":2}`, out.Canonical)
	assert.Equal(t, scenarioLeafB64, out.LeafHash)

	rec = doRequest(t, s, http.MethodPost, "/v1/canonicalize", `{"a":1,"a":2}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ENCODING_ERROR", decodeBody[errorResponse](t, rec).Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/canonicalize", `{"a":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeBody[errorResponse](t, rec).Code)
}

func TestBodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 8
	s, _ := newTestServer(t, cfg, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/canonicalize", `{"key":"a value that is too long"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "BODY_TOO_LARGE", decodeBody[errorResponse](t, rec).Code)
}

func TestMockProofThenVerify(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/proofs/mock", `{"records":[{"b":2,"a":1}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mock := decodeBody[mockProofResponse](t, rec)
	require.Len(t, mock.Proofs, 1)

	anchor := mock.Proofs[0].TransparencyAnchor
	require.NotNil(t, anchor)
	assert.Equal(t, usecase.MockBackendType, anchor.BackendType)
	assert.Equal(t, config.DefaultMockLogID, anchor.LogID)
	assert.Equal(t, uint64(1), anchor.TreeSize)
	assert.Equal(t, scenarioLeafB64, anchor.RootHash)
	assert.Equal(t, fixedNow.UnixNano(), anchor.TimestampNanos)
	assert.Empty(t, anchor.InclusionProof.Hashes)
	require.NotNil(t, mock.Proofs[0].Debug)
	assert.Equal(t, `{"a":1,"b":2}`, mock.Proofs[0].Debug.CanonicalJSON)

	proof, err := proofdoc.Encode(mock.Proofs[0])
	require.NoError(t, err)

	rec = postVerify(t, s, `{"a":1,"b":2}`, proof)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[verifyResponse](t, rec)
	assert.True(t, out.Valid)
	assert.Equal(t, domain.VerdictAccepted, out.Verdict)
	assert.Equal(t, scenarioLeafB64, out.ComputedRoot)
	assert.Empty(t, out.Error)
}

func TestMockProofMultipleRecords(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/proofs/mock", `{"records":[{"n":1},{"n":2},{"n":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mock := decodeBody[mockProofResponse](t, rec)
	require.Len(t, mock.Proofs, 3)

	for i, doc := range mock.Proofs {
		assert.Equal(t, uint64(i), doc.TransparencyAnchor.LeafIndex)
		assert.Equal(t, uint64(3), doc.TransparencyAnchor.TreeSize)

		proof, err := proofdoc.Encode(doc)
		require.NoError(t, err)
		event, err := json.Marshal(map[string]int{"n": i + 1})
		require.NoError(t, err)
		rec := postVerify(t, s, string(event), proof)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[verifyResponse](t, rec).Valid, "record %d", i)
	}

	rec = doRequest(t, s, http.MethodPost, "/v1/proofs/mock", `{"records":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyOutcomes(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nil)
	mismatched := strings.Replace(scenarioLeafB64, "QAYP", "QAYQ", 1)

	tests := []struct {
		name    string
		proof   string
		status  int
		verdict domain.Verdict
	}{
		{
			name:    "flat anchor accepted",
			proof:   `{"leaf_index":0,"tree_size":1,"root_hash":"` + scenarioLeafB64 + `"}`,
			status:  http.StatusOK,
			verdict: domain.VerdictAccepted,
		},
		{
			name:    "root mismatch",
			proof:   `{"transparency_anchor":{"leaf_index":0,"tree_size":1,"root_hash":"` + mismatched + `"}}`,
			status:  http.StatusOK,
			verdict: domain.VerdictRootMismatch,
		},
		{
			name:    "empty tree",
			proof:   `{"leaf_index":0,"tree_size":0,"root_hash":"` + scenarioLeafB64 + `"}`,
			status:  http.StatusUnprocessableEntity,
			verdict: domain.VerdictInvalidTree,
		},
		{
			name:    "path on single leaf",
			proof:   `{"leaf_index":0,"tree_size":1,"root_hash":"` + scenarioLeafB64 + `","inclusion_proof":{"hashes":["` + scenarioLeafB64 + `"]}}`,
			status:  http.StatusUnprocessableEntity,
			verdict: domain.VerdictMalformedProof,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postVerify(t, s, `{"b":2,"a":1}`, []byte(tt.proof))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			out := decodeBody[verifyResponse](t, rec)
			assert.Equal(t, tt.verdict, out.Verdict)
			assert.Equal(t, tt.verdict == domain.VerdictAccepted, out.Valid)
			assert.Equal(t, scenarioLeafB64, out.LeafHash)
		})
	}
}

func TestVerifyRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nil)

	rec := postVerify(t, s, `{"a":1}`, []byte(`{"leaf_index":0,"tree_size":1,"root_hash":"AAAA"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PROOF", decodeBody[errorResponse](t, rec).Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/verify", `{"event":{"a":1}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody[errorResponse](t, rec).Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/verify", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeBody[errorResponse](t, rec).Code)

	rec = postVerify(t, s, `{"a":1}`, []byte(`{"leaf_index":0,"tree_size":1,"root_hash":"AA==","root_hash":"AQ=="}`))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ENCODING_ERROR", decodeBody[errorResponse](t, rec).Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/verify", `{"event":{"a":1},"event":{"a":2},"proof":{}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ENCODING_ERROR", decodeBody[errorResponse](t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindowSeconds = 60
	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{Now: func() time.Time { return fixedNow }})
	s, _ := newTestServer(t, cfg, limiter)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, s, http.MethodPost, "/v1/canonicalize", `{}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("RateLimit-Limit"))
	}

	rec := doRequest(t, s, http.MethodPost, "/v1/canonicalize", `{}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeBody[errorResponse](t, rec).Code)
	assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Limits are tracked per route.
	rec = doRequest(t, s, http.MethodPost, "/v1/proofs/mock", `{"records":[{}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitIgnoresUntrustedForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 1
	newLimiter := func() domain.RateLimiter {
		return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{Now: func() time.Time { return fixedNow }})
	}
	send := func(s *Server, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/canonicalize", strings.NewReader(`{}`))
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	s, _ := newTestServer(t, cfg, newLimiter())
	assert.Equal(t, http.StatusOK, send(s, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send(s, "203.0.113.2"))

	// httptest requests come from 192.0.2.1.
	cfg.TrustedProxies = []string{"192.0.2.1"}
	proxied, _ := newTestServer(t, cfg, newLimiter())
	assert.Equal(t, http.StatusOK, send(proxied, "203.0.113.1"))
	assert.Equal(t, http.StatusOK, send(proxied, "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send(proxied, "203.0.113.1"))
}

func TestRateLimiterFailureModes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 5

	open, logs := newTestServer(t, cfg, failingLimiter{})
	rec := doRequest(t, open, http.MethodPost, "/v1/canonicalize", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("Rate limiter error").Len())

	cfg.RateLimitFailClosed = true
	closed, _ := newTestServer(t, cfg, failingLimiter{})
	rec = doRequest(t, closed, http.MethodPost, "/v1/canonicalize", `{}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_UNAVAILABLE", decodeBody[errorResponse](t, rec).Code)
}

func postVerify(t *testing.T, s *Server, event string, proof []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	body.WriteString(`{"event":`)
	body.WriteString(event)
	body.WriteString(`,"proof":`)
	body.Write(proof)
	body.WriteString(`}`)
	return doRequest(t, s, http.MethodPost, "/v1/verify", body.String())
}
