package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// BatchRefresher refreshes cached profile fields for the whole user
// population in fixed-size chunks, pausing between chunks to respect the
// provider's rate limits.
type BatchRefresher struct {
	users     UserStore
	client    ProfileClient
	chunkSize int
	delay     time.Duration
	logger    *slog.Logger

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// NewBatchRefresher creates a batch refresher with the given chunk size and
// inter-chunk delay.
func NewBatchRefresher(
	users UserStore,
	client ProfileClient,
	chunkSize int,
	delay time.Duration,
	logger *slog.Logger,
) *BatchRefresher {
	return &BatchRefresher{
		users:     users,
		client:    client,
		chunkSize: chunkSize,
		delay:     delay,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Run refreshes every user's cached profile, one remote call per chunk in
// stable order, sleeping the configured delay between chunks but never
// before the first or after the last. A chunk's remote failure propagates;
// there is no checkpoint, a re-run starts from the first chunk.
func (r *BatchRefresher) Run(ctx context.Context) error {
	r.logger.Info("refreshing user cache")

	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ExternalID
	}

	for i, group := range chunkIDs(ids, r.chunkSize) {
		if i > 0 {
			r.logger.Info("waiting before next group", "delay", r.delay)
			r.sleep(r.delay)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		r.logger.Info("refreshing user group", "group", i+1, "size", len(group))
		if err := r.client.RefreshUsers(ctx, group); err != nil {
			return fmt.Errorf("refresh user group %d: %w", i+1, err)
		}
	}

	r.logger.Info("user cache refresh complete", "users", len(ids))
	return nil
}

// chunkIDs splits ids into consecutive groups of at most size elements.
func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}

	groups := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		groups = append(groups, ids[start:end])
	}
	return groups
}
