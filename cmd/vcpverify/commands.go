package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pkgerrors "github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"vcpproof/internal/config"
	"vcpproof/internal/domain"
	"vcpproof/internal/infra/crypto"
	httpapi "vcpproof/internal/infra/http"
	"vcpproof/internal/infra/logmem"
	"vcpproof/internal/infra/merkle"
	"vcpproof/internal/infra/proofdoc"
	"vcpproof/internal/usecase"
)

func canonicalizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "canonicalize",
		Usage:     "Print the canonical form of a JSON record",
		ArgsUsage: "<input.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "bytes", Usage: "Write the raw canonical bytes without a trailing newline"},
			&cli.StringFlag{Name: "out", Usage: "Write to a file instead of stdout"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: vcpverify canonicalize <input.json> [--bytes]", 1)
			}
			record, err := loadRecord(c.Args().First())
			if err != nil {
				return err
			}
			canonical, err := crypto.Canonicalize(record)
			if err != nil {
				return err
			}
			return writeOutput(c.App.Writer, c.String("out"), canonical, !c.Bool("bytes"))
		},
	}
}

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash",
		Usage:     "Print the canonical SHA-256 and RFC 6962 leaf hash of a JSON record",
		ArgsUsage: "<input.json>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: vcpverify hash <input.json>", 1)
			}
			record, err := loadRecord(c.Args().First())
			if err != nil {
				return err
			}
			d, err := crypto.DigestRecord(record)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "canonical_sha256: %s\n", d.CanonicalSHA256)
			fmt.Fprintf(w, "leaf_hash:        %s\n", d.LeafHash)
			fmt.Fprintf(w, "leaf_hash_base64: %s\n", d.LeafHash.Base64())
			return nil
		},
	}
}

func verifyCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify that a record is included in a transparency log",
		ArgsUsage: "<event.json> <proof.json>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: vcpverify verify <event.json> <proof.json>", 1)
			}
			result, err := verifyFiles(c, c.Args().Get(0), c.Args().Get(1))
			if result != nil {
				state.logger.Debug("Verification finished",
					zap.String("verdict", string(result.Verdict)),
					zap.Stringer("leaf_hash", result.LeafHash),
					zap.Uint64("leaf_index", result.LeafIndex),
					zap.Uint64("tree_size", result.TreeSize),
				)
			}

			w := c.App.Writer
			switch {
			case err == nil:
				fmt.Fprintln(w, "✓ Inclusion proof valid")
				fmt.Fprintf(w, "  Leaf index: %d\n", result.LeafIndex)
				fmt.Fprintf(w, "  Tree size:  %d\n", result.TreeSize)
				return nil
			case errors.Is(err, domain.ErrRootMismatch):
				fmt.Fprintln(w, "✗ Inclusion proof INVALID")
				fmt.Fprintln(w, "  Computed root does not match claimed root")
				return cli.Exit("", 1)
			default:
				return cli.Exit(fmt.Sprintf("✗ Verification failed: %v", err), 1)
			}
		},
	}
}

func verifyFiles(c *cli.Context, eventPath, proofPath string) (*domain.VerificationResult, error) {
	record, err := loadRecord(eventPath)
	if err != nil {
		return nil, err
	}
	doc, err := proofdoc.Load(proofPath)
	if err != nil {
		return nil, err
	}
	claim, err := doc.TransparencyAnchor.Claim()
	if err != nil {
		return nil, err
	}
	uc := &usecase.VerifyRecordInclusion{Crypto: crypto.NewService(), Merkle: &merkle.Service{}}
	return uc.Execute(c.Context, record, claim)
}

func mockProofCommand() *cli.Command {
	return &cli.Command{
		Name:      "mock-proof",
		Usage:     "Issue inclusion proofs from a throwaway in-memory log",
		ArgsUsage: "<event.json> [more.json...]",
		Description: `With one record the proof describes a single-leaf tree. With several, all
records are appended in order and each proof is against the final tree head;
the output is then a JSON array.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-id", Value: config.DefaultMockLogID, Usage: "Log id written into the proof"},
			&cli.StringFlag{Name: "out", Usage: "Write to a file instead of stdout"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("usage: vcpverify mock-proof <event.json> [more.json...]", 1)
			}
			records := make([]domain.Value, 0, c.NArg())
			for _, path := range c.Args().Slice() {
				record, err := loadRecord(path)
				if err != nil {
					return err
				}
				records = append(records, record)
			}

			cryptoSvc := crypto.NewService()
			merkleSvc := &merkle.Service{}
			gen := &usecase.MockProofGenerator{
				Crypto: cryptoSvc,
				Merkle: merkleSvc,
				NewLog: func() usecase.TransparencyLog { return logmem.New() },
				LogID:  c.String("log-id"),
			}
			proofs, err := gen.Generate(c.Context, records...)
			if err != nil {
				return err
			}

			docs := make([]*proofdoc.Document, 0, len(proofs))
			for _, p := range proofs {
				docs = append(docs, &proofdoc.Document{
					TransparencyAnchor: proofdoc.NewAnchor(p.BackendType, p.LogID, p.Claim, p.IssuedAt.UnixNano()),
					Debug:              proofdoc.NewDebug(p.Canonical, p.CanonicalSHA256, p.LeafHash),
				})
			}

			var payload []byte
			if len(docs) == 1 {
				payload, err = proofdoc.Encode(docs[0])
			} else {
				payload, err = proofdoc.EncodeAll(docs)
			}
			if err != nil {
				return err
			}
			return writeOutput(c.App.Writer, c.String("out"), payload, true)
		},
	}
}

func serveCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the verification HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address", EnvVars: []string{"HTTP_ADDR"}},
			&cli.IntFlag{Name: "rate-limit-requests", Usage: "Requests per window per client and route, 0 disables", EnvVars: []string{"RATE_LIMIT_REQUESTS"}},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis address for a shared rate limiter", EnvVars: []string{"REDIS_ADDR"}},
		},
		Action: func(c *cli.Context) error {
			cfg := config.FromEnv()
			if c.IsSet("addr") {
				cfg.HTTPAddr = c.String("addr")
			}
			if c.IsSet("rate-limit-requests") {
				cfg.RateLimitRequests = c.Int("rate-limit-requests")
			}
			if c.IsSet("redis-addr") {
				cfg.RedisAddr = c.String("redis-addr")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			state.logger.Sugar().Infow("Starting vcpverify server",
				"addr", cfg.HTTPAddr,
				"rate_limit_requests", cfg.RateLimitRequests,
				"redis", cfg.RedisAddr != "",
			)
			return httpapi.NewServer(cfg, state.logger).Run(ctx)
		},
	}
}

func loadRecord(path string) (domain.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read %s", path)
	}
	record, err := crypto.ParseJSON(data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse %s", path)
	}
	return record, nil
}
