package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"compsheet/internal/config"
	"compsheet/internal/listener"
	"compsheet/internal/logging"
	"compsheet/internal/publish"
	"compsheet/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	svc := listener.NewService(db, cfg, logger)
	if cfg.PublishPostgresDSN != "" {
		w, err := publish.NewPostgresWriter(cfg.PublishPostgresDSN, cfg.PublishPostgresTable)
		must(err)
		defer w.Close()
		svc.WithPublisher(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
