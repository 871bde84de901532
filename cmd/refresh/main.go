// Command refresh runs one pass of the user cache refresh and exits. Useful
// for backfills and for running the refresh from an external scheduler
// instead of the server's built-in one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openplans/visionstream/internal/config"
	"github.com/openplans/visionstream/internal/domain"
	"github.com/openplans/visionstream/internal/profile"
	"github.com/openplans/visionstream/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	chunkSize := flag.Int("chunk-size", 0, "override configured chunk size")
	chunkDelay := flag.Duration("chunk-delay", 0, "override configured inter-chunk delay")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *chunkSize > 0 {
		cfg.RefreshChunkSize = *chunkSize
	}
	if *chunkDelay > 0 {
		cfg.RefreshChunkDelay = *chunkDelay
	}

	repo, err := sqlite.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	refresher := domain.NewBatchRefresher(
		repo,
		profile.NewClient(cfg.ProfileAPIURL, repo, logger),
		cfg.RefreshChunkSize,
		cfg.RefreshChunkDelay,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	if err := refresher.Run(ctx); err != nil {
		return fmt.Errorf("refresh users: %w", err)
	}

	logger.Info("refresh complete", "duration", time.Since(start))
	return nil
}
