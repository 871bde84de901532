package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const reconnectDelay = 5 * time.Second

// ConsumerConfig carries the stream consumer's connection parameters.
type ConsumerConfig struct {
	// Keywords are the tracked terms. Fixed configuration; the consumer
	// never mutates them.
	Keywords []string

	// RecentWindow is how many of the most recently stored posts seed the
	// followed-author set before each connection.
	RecentWindow int
}

// RunOutcome describes how a single consumer session ended. Exactly one
// field is set. Both are normal terminations, not errors.
type RunOutcome struct {
	// RestartRequested is set when a persisted post's author was not in the
	// followed set. The caller reconnects with recomputed parameters so the
	// follow list stays representative of active participants.
	RestartRequested bool

	// Disconnect is set when the provider closed the stream.
	Disconnect *Disconnect
}

// StreamConsumer owns the live stream session: it seeds the followed-author
// window, consumes records, classifies posts, and performs store mutations.
type StreamConsumer struct {
	cfg        ConsumerConfig
	store      ConversationStore
	client     StreamClient
	classifier *Classifier
	logger     *slog.Logger
}

// NewStreamConsumer creates a stream consumer with the given collaborators.
func NewStreamConsumer(
	cfg ConsumerConfig,
	store ConversationStore,
	client StreamClient,
	classifier *Classifier,
	logger *slog.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		cfg:        cfg,
		store:      store,
		client:     client,
		classifier: classifier,
		logger:     logger,
	}
}

// Start runs consumer sessions until the context is cancelled. A restart
// request reconnects immediately with reseeded parameters; a disconnect or
// a transport error reconnects after a short backoff.
func (c *StreamConsumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := c.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("stream session failed, reconnecting", "error", err)
		} else if outcome.RestartRequested {
			c.logger.Info("restart requested, reconnecting with updated parameters")
			continue
		} else if outcome.Disconnect != nil {
			c.logger.Warn("stream disconnected, reconnecting",
				"reason", outcome.Disconnect.Reason,
				"code", outcome.Disconnect.Code,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// Run executes one consumer session: seed the followed set from the recent
// post window, connect, and process records until the provider disconnects,
// a restart condition fires, or the context is cancelled.
func (c *StreamConsumer) Run(ctx context.Context) (RunOutcome, error) {
	followed, followIDs, err := c.seedFollowed(ctx)
	if err != nil {
		return RunOutcome{}, err
	}

	c.logger.Info("connecting to stream",
		"keywords", c.cfg.Keywords,
		"followed_authors", len(followIDs),
	)

	stream, err := c.client.Connect(ctx, c.cfg.Keywords, followIDs)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("connect stream: %w", err)
	}
	defer stream.Close()

	for {
		event, err := stream.Next(ctx)
		if err != nil {
			return RunOutcome{}, fmt.Errorf("read stream: %w", err)
		}

		switch event.Kind {
		case EventDisconnect:
			c.logger.Warn("provider closed the stream",
				"reason", event.Disconnect.Reason,
				"code", event.Disconnect.Code,
			)
			return RunOutcome{Disconnect: event.Disconnect}, nil

		case EventDelete:
			deleted, err := c.store.DeletePostByExternalID(ctx, event.DeleteExternalID)
			if err != nil {
				return RunOutcome{}, fmt.Errorf("delete post %s: %w", event.DeleteExternalID, err)
			}
			if deleted {
				c.logger.Info("deleted post on provider request", "external_id", event.DeleteExternalID)
			}

		case EventPost:
			restart, err := c.handlePost(ctx, event, followed)
			if err != nil {
				return RunOutcome{}, err
			}
			if restart {
				return RunOutcome{RestartRequested: true}, nil
			}
		}
	}
}

// handlePost classifies and persists one post record. Reports whether the
// restart condition fired.
func (c *StreamConsumer) handlePost(ctx context.Context, event *Event, followed map[string]struct{}) (bool, error) {
	post := event.Post

	if event.Reshare {
		return false, nil
	}

	action, err := c.classifier.Classify(ctx, post)
	if err != nil {
		return false, fmt.Errorf("classify post %s: %w", post.ExternalID, err)
	}

	if action == Discard {
		return false, nil
	}

	created, err := c.store.UpsertPost(ctx, post)
	if err != nil {
		return false, fmt.Errorf("upsert post %s: %w", post.ExternalID, err)
	}

	c.logger.Info("kept post",
		"external_id", post.ExternalID,
		"author", post.Author.Handle,
		"action", action.String(),
		"created", created,
	)

	if action == AttachAsReply {
		// Eager promotion: if the parent is already part of a conversation
		// we know which vision this reply belongs to. Otherwise the post
		// stays a candidate until a converter sweep resolves it.
		ref, err := c.store.Assignment(ctx, post.InReplyTo)
		if err != nil {
			return false, fmt.Errorf("resolve ancestor of %s: %w", post.ExternalID, err)
		}
		if ref.Kind != Unassigned {
			if _, err := c.store.MarkAsReply(ctx, post, ref.VisionID); err != nil {
				return false, fmt.Errorf("promote post %s to reply: %w", post.ExternalID, err)
			}
			c.logger.Info("attached reply", "external_id", post.ExternalID, "vision_id", ref.VisionID)
		}
	}

	if _, ok := followed[post.Author.ExternalID]; !ok {
		c.logger.Info("unfamiliar author, requesting stream restart",
			"author", post.Author.Handle,
			"author_id", post.Author.ExternalID,
		)
		return true, nil
	}

	return false, nil
}

// seedFollowed computes the followed-author set from the most recent stored
// posts. Order is preserved for the connection parameters, newest first.
func (c *StreamConsumer) seedFollowed(ctx context.Context) (map[string]struct{}, []string, error) {
	recent, err := c.store.RecentPosts(ctx, c.cfg.RecentWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("load recent posts: %w", err)
	}

	followed := make(map[string]struct{}, len(recent))
	followIDs := make([]string, 0, len(recent))
	for _, post := range recent {
		if _, ok := followed[post.Author.ExternalID]; ok {
			continue
		}
		followed[post.Author.ExternalID] = struct{}{}
		followIDs = append(followIDs, post.Author.ExternalID)
	}

	return followed, followIDs, nil
}
