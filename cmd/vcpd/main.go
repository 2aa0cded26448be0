package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vcpproof/internal/config"
	httpinfra "vcpproof/internal/infra/http"
	"vcpproof/internal/logger"
)

func main() {
	cfg := config.FromEnv()

	l, err := logger.NewLogger(&logger.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := httpinfra.NewServer(cfg, l)
	if err := srv.Run(ctx); err != nil {
		l.Sugar().Fatalw("Server exited", "error", err)
	}
}
