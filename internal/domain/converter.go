package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnresolvedReply is returned when a post cannot be converted to a reply
// because its reply target does not resolve to a vision or another reply.
var ErrUnresolvedReply = errors.New("reply target does not resolve to a conversation")

// ConversionReport carries the per-item outcome counts of a bulk reply
// conversion so operators can act on the remainder.
type ConversionReport struct {
	Succeeded int
	Failed    int
}

// Message renders the report as an operator-facing summary.
func (r ConversionReport) Message() string {
	if r.Failed == 0 {
		return fmt.Sprintf("Converted %d post(s) to replies.", r.Succeeded)
	}
	return fmt.Sprintf(
		"Converted %d post(s) to replies. %d post(s) are not yet replies to visions. Assign reply targets before retrying.",
		r.Succeeded, r.Failed,
	)
}

// BulkConverter promotes stored candidate posts into visions and replies on
// operator request.
type BulkConverter struct {
	store  ConversationStore
	logger *slog.Logger
}

// NewBulkConverter creates a bulk converter over the given store.
func NewBulkConverter(store ConversationStore, logger *slog.Logger) *BulkConverter {
	return &BulkConverter{store: store, logger: logger}
}

// MakeVisions promotes every listed post to a thread root and returns how
// many were converted. Promotion is unconditional for any stored post.
func (b *BulkConverter) MakeVisions(ctx context.Context, externalIDs []string) (int, error) {
	converted := 0
	for _, id := range externalIDs {
		post, err := b.store.GetPostByExternalID(ctx, id)
		if err != nil {
			return converted, fmt.Errorf("load post %s: %w", id, err)
		}
		if _, err := b.store.MarkAsVision(ctx, post); err != nil {
			return converted, fmt.Errorf("promote post %s to vision: %w", id, err)
		}
		converted++
	}

	b.logger.Info("bulk vision conversion complete", "converted", converted)
	return converted, nil
}

// MakeReplies promotes the listed posts to replies. The fast path converts
// every post whose reply target already resolves; the posts it could not
// resolve are then retried one by one, because a conversion made moments
// earlier may have promoted their parent. Per-item failures never abort the
// batch: the report's counts always sum to the batch size.
func (b *BulkConverter) MakeReplies(ctx context.Context, externalIDs []string) (ConversionReport, error) {
	var report ConversionReport

	unresolved, err := b.convertResolvable(ctx, externalIDs, &report)
	if err != nil {
		return report, err
	}

	for _, id := range unresolved {
		switch err := b.makeReply(ctx, id); {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, ErrUnresolvedReply), errors.Is(err, ErrNotFound):
			report.Failed++
		default:
			return report, err
		}
	}

	b.logger.Info("bulk reply conversion complete",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return report, nil
}

// convertResolvable converts every post whose ancestor already resolves and
// returns the external ids of the remainder, in input order.
func (b *BulkConverter) convertResolvable(ctx context.Context, externalIDs []string, report *ConversionReport) ([]string, error) {
	var unresolved []string
	for _, id := range externalIDs {
		switch err := b.makeReply(ctx, id); {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, ErrUnresolvedReply), errors.Is(err, ErrNotFound):
			unresolved = append(unresolved, id)
		default:
			return nil, err
		}
	}
	return unresolved, nil
}

// makeReply converts a single post to a reply. Returns ErrUnresolvedReply
// when the post has no reply target or the target is not yet part of a
// conversation.
func (b *BulkConverter) makeReply(ctx context.Context, externalID string) error {
	post, err := b.store.GetPostByExternalID(ctx, externalID)
	if err != nil {
		return err
	}

	if post.InReplyTo == "" {
		return fmt.Errorf("post %s: %w", externalID, ErrUnresolvedReply)
	}

	ref, err := b.store.Assignment(ctx, post.InReplyTo)
	if err != nil {
		return fmt.Errorf("resolve ancestor of %s: %w", externalID, err)
	}
	if ref.Kind == Unassigned {
		return fmt.Errorf("post %s: %w", externalID, ErrUnresolvedReply)
	}

	if _, err := b.store.MarkAsReply(ctx, post, ref.VisionID); err != nil {
		return fmt.Errorf("promote post %s to reply: %w", externalID, err)
	}
	return nil
}
