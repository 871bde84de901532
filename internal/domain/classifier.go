package domain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Action is the classifier's decision for a single post.
type Action int

const (
	// Discard means the post is noise: not persisted.
	Discard Action = iota

	// KeepCandidate means the post matched a tracked keyword and is stored
	// as an unassigned candidate.
	KeepCandidate

	// AttachAsReply means the post replies to a post we already have, so it
	// belongs to a conversation regardless of its text.
	AttachAsReply
)

func (a Action) String() string {
	switch a {
	case Discard:
		return "discard"
	case KeepCandidate:
		return "keep"
	case AttachAsReply:
		return "attach"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Classifier decides whether an incoming post joins a conversation, stays as
// a keyword-matched candidate, or is discarded. Thread membership always
// takes priority over topical relevance.
type Classifier struct {
	store   ConversationStore
	pattern *regexp.Regexp // nil when no keywords are tracked
}

// NewClassifier compiles the tracked keywords into a single case-insensitive
// alternation. An empty keyword set yields a classifier that never matches
// on text.
func NewClassifier(keywords []string, store ConversationStore) (*Classifier, error) {
	c := &Classifier{store: store}

	if len(keywords) > 0 {
		escaped := make([]string, len(keywords))
		for i, kw := range keywords {
			escaped[i] = regexp.QuoteMeta(kw)
		}

		expr := `(?i)(?:` + strings.Join(escaped, "|") + `)`
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile keyword pattern: %w", err)
		}
		c.pattern = pattern
	}

	return c, nil
}

// Classify decides the action for the given post. A reply whose target is in
// the store attaches to that conversation; a dangling reply target is not a
// reason to discard, the post falls through to the keyword check because its
// parent may simply not have been ingested yet.
func (c *Classifier) Classify(ctx context.Context, post *Post) (Action, error) {
	if post.InReplyTo != "" {
		_, err := c.store.GetPostByExternalID(ctx, post.InReplyTo)
		switch {
		case err == nil:
			return AttachAsReply, nil
		case errors.Is(err, ErrNotFound):
			// parent not cached, evaluate on relevance
		default:
			return Discard, fmt.Errorf("resolve reply target %s: %w", post.InReplyTo, err)
		}
	}

	if c.pattern != nil && c.pattern.MatchString(post.Text) {
		return KeepCandidate, nil
	}

	return Discard, nil
}
