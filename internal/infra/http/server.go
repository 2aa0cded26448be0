package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vcpproof/internal/config"
	"vcpproof/internal/domain"
	"vcpproof/internal/infra/crypto"
	"vcpproof/internal/infra/logmem"
	"vcpproof/internal/infra/merkle"
	"vcpproof/internal/infra/ratelimit"
	"vcpproof/internal/usecase"
)

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *zap.Logger

	verifyUC *usecase.VerifyRecordInclusion
	mockUC   *usecase.MockProofGenerator

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Verify      *usecase.VerifyRecordInclusion
	Mock        *usecase.MockProofGenerator
	RateLimiter domain.RateLimiter
	Logger      *zap.Logger
}

// NewServer wires the default in-process services. A Redis rate limiter is
// used when REDIS_ADDR is configured and reachable at startup.
func NewServer(cfg config.Config, logger *zap.Logger) *Server {
	cryptoSvc := crypto.NewService()
	merkleSvc := &merkle.Service{}
	return NewServerWithDeps(cfg, ServerDeps{
		Verify: &usecase.VerifyRecordInclusion{Crypto: cryptoSvc, Merkle: merkleSvc},
		Mock: &usecase.MockProofGenerator{
			Crypto: cryptoSvc,
			Merkle: merkleSvc,
			NewLog: func() usecase.TransparencyLog { return logmem.New() },
			LogID:  cfg.MockLogID,
		},
		Logger: logger,
	})
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Rate-limit keys use c.ClientIP, so forwarded headers are only honoured
	// from configured proxies.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Sugar().Warnw("Invalid trusted proxies, trusting none", "proxies", cfg.TrustedProxies, "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	s := &Server{
		cfg:      cfg,
		r:        r,
		logger:   logger,
		verifyUC: deps.Verify,
		mockUC:   deps.Mock,
	}
	s.r.Use(s.requestLogger(), s.limitBody())
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil)
			if err == nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				err = limiter.Ping(ctx)
				cancel()
				if err != nil {
					_ = limiter.Close()
				}
			}
			if err == nil {
				s.rateLimiter = limiter
			} else {
				s.logger.Sugar().Warnw("Redis rate limiter unavailable, falling back to memory", "addr", s.cfg.RedisAddr, "error", err)
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
				Burst:   s.cfg.RateLimitBurst,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/canonicalize", s.rateLimit(routeCanonicalize), s.handleCanonicalize)
		v1.POST("/verify", s.rateLimit(routeVerify), s.handleVerify)
		v1.POST("/proofs/mock", s.rateLimit(routeMockProof), s.handleMockProof)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is canceled, then drains in-flight requests for up to
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Sugar().Infow("HTTP server listening", "addr", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Sugar().Infow("Shutting down HTTP server", "timeout", s.cfg.ShutdownTimeout())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
