package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/openplans/visionstream/internal/config"
	"github.com/openplans/visionstream/internal/domain"
	"github.com/openplans/visionstream/internal/httpserver"
	"github.com/openplans/visionstream/internal/profile"
	"github.com/openplans/visionstream/internal/sqlite"
	"github.com/openplans/visionstream/internal/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := sqlite.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()
	logger.Info("opened database", "path", cfg.DatabasePath)

	classifier, err := domain.NewClassifier(cfg.TrackedKeywords, repo)
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}

	consumer := domain.NewStreamConsumer(
		domain.ConsumerConfig{
			Keywords:     cfg.TrackedKeywords,
			RecentWindow: cfg.RecentWindow,
		},
		repo,
		stream.NewClient(cfg.StreamURL, logger),
		classifier,
		logger,
	)

	converter := domain.NewBulkConverter(repo, logger)

	refresher := domain.NewBatchRefresher(
		repo,
		profile.NewClient(cfg.ProfileAPIURL, repo, logger),
		cfg.RefreshChunkSize,
		cfg.RefreshChunkDelay,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Stream consumer runs continuously; restarts and disconnects are
	// handled inside Start.
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("stream consumer exited with error", "error", err)
		}
	}()

	// User cache refresh runs on a schedule.
	jobs := cron.New()
	_, err = jobs.AddFunc(cfg.RefreshSchedule, func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("user cache refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule refresh job: %w", err)
	}
	jobs.Start()
	defer jobs.Stop()

	server := httpserver.NewServer(cfg.Port, repo, repo, converter, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started",
		"port", cfg.Port,
		"keywords", cfg.TrackedKeywords,
		"refresh_schedule", cfg.RefreshSchedule,
	)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
