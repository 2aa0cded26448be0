package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"vcpproof/internal/logger"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

type appState struct {
	logger *zap.Logger
}

func newApp(stdout, stderr io.Writer) *cli.App {
	state := &appState{logger: zap.NewNop()}
	return &cli.App{
		Name:  "vcpverify",
		Usage: "Canonicalize event records and verify transparency log inclusion proofs",
		Description: `Records are canonicalized with RFC 8785 JSON canonicalization and hashed as
RFC 6962 Merkle leaves. Proof documents carry a leaf index, tree size, root
hash and audit path, optionally wrapped in a transparency_anchor envelope.`,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level: debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "console",
				Usage:   "Log format: json or console",
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Before: func(c *cli.Context) error {
			l, err := logger.NewLogger(&logger.LoggerConfig{
				Level:  c.String("log-level"),
				Format: c.String("log-format"),
			})
			if err != nil {
				return err
			}
			state.logger = l
			return nil
		},
		After: func(c *cli.Context) error {
			_ = state.logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			canonicalizeCommand(),
			hashCommand(),
			verifyCommand(state),
			mockProofCommand(),
			serveCommand(state),
		},
		// Exit codes are resolved in run so tests never reach os.Exit.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	err := newApp(stdout, stderr).Run(args)
	if err == nil {
		return 0
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return exitErr.ExitCode()
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}
