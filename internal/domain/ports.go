package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups when no record matches.
var ErrNotFound = errors.New("not found")

// Assignment describes which conversation state a post is in.
type Assignment int

const (
	// Unassigned means the post is a candidate: stored but not yet promoted.
	Unassigned Assignment = iota

	// AssignedVision means the post is the root of a conversation.
	AssignedVision

	// AssignedReply means the post is a reply within a conversation.
	AssignedReply
)

// ThreadRef locates a post within the conversation tree. VisionID is set
// only when Kind is AssignedVision or AssignedReply.
type ThreadRef struct {
	Kind     Assignment
	VisionID int64
}

// ConversationStore defines persistence operations for posts and their
// promotion into visions and replies. Upserts are idempotent by external id
// so the same post arriving twice across reconnects converges to one row.
type ConversationStore interface {
	// UpsertPost inserts the post or replaces the stored payload for its
	// external id. Returns whether a new row was created.
	UpsertPost(ctx context.Context, post *Post) (created bool, err error)

	// GetPostByExternalID retrieves a post. Returns ErrNotFound if absent.
	GetPostByExternalID(ctx context.Context, externalID string) (*Post, error)

	// DeletePostByExternalID removes a post. Reports whether a row existed.
	DeletePostByExternalID(ctx context.Context, externalID string) (bool, error)

	// RecentPosts retrieves up to limit posts, newest first.
	RecentPosts(ctx context.Context, limit int) ([]Post, error)

	// ListCandidates retrieves up to limit unassigned posts, newest first.
	ListCandidates(ctx context.Context, limit int) ([]Post, error)

	// Assignment reports the conversation state of the post with the given
	// external id. Unknown posts are reported as Unassigned.
	Assignment(ctx context.Context, externalID string) (ThreadRef, error)

	// MarkAsVision promotes a post to a thread root. Idempotent: promoting
	// an existing vision's post returns the existing vision. Fails if the
	// post is already a reply.
	MarkAsVision(ctx context.Context, post *Post) (*Vision, error)

	// MarkAsReply promotes a post to a reply under the given vision.
	// Idempotent in the same way. Fails if the post is already a vision.
	MarkAsReply(ctx context.Context, post *Post, visionID int64) (*Reply, error)
}

// VisionStore defines the operator-facing operations on promoted visions.
type VisionStore interface {
	// GetVision retrieves a vision by id. Returns ErrNotFound if absent.
	GetVision(ctx context.Context, id int64) (*Vision, error)

	// AddSupporter records a user's support for a vision. Idempotent.
	AddSupporter(ctx context.Context, visionID int64, userExternalID string) error

	// CreateShare records an external share of a vision by a user.
	CreateShare(ctx context.Context, visionID int64, userExternalID string) (*Share, error)

	// SetFeatured sets the vision's featured flag.
	SetFeatured(ctx context.Context, visionID int64, featured bool) error

	// SetCategory assigns one of the fixed category labels to a vision.
	SetCategory(ctx context.Context, visionID int64, category string) error
}

// UserStore defines persistence for cached user profiles.
type UserStore interface {
	// UpsertUser inserts the user or updates its cached profile fields,
	// preserving the visible_on_home flag on update.
	UpsertUser(ctx context.Context, user *User) error

	// ListUsers retrieves all users in stable (external id) order.
	ListUsers(ctx context.Context) ([]User, error)
}

// EventKind tags a decoded stream record.
type EventKind int

const (
	// EventPost is a normal post record.
	EventPost EventKind = iota

	// EventDelete asks us to remove a previously seen post.
	EventDelete

	// EventDisconnect is the provider closing the stream. Terminal.
	EventDisconnect
)

// Disconnect carries the provider's stated reason for closing the stream.
type Disconnect struct {
	Reason string
	Code   int
}

// Event is one decoded record from the live stream.
type Event struct {
	Kind EventKind

	// Post is set when Kind is EventPost.
	Post *Post

	// Reshare is set when Kind is EventPost and the record carries a
	// reshare marker. Reshares are never candidates.
	Reshare bool

	// DeleteExternalID is set when Kind is EventDelete.
	DeleteExternalID string

	// Disconnect is set when Kind is EventDisconnect.
	Disconnect *Disconnect
}

// EventStream is a live connection yielding decoded stream records.
type EventStream interface {
	// Next blocks until the next record arrives, the stream fails, or ctx
	// is cancelled.
	Next(ctx context.Context) (*Event, error)

	Close() error
}

// StreamClient opens live connections to the social-media provider.
type StreamClient interface {
	// Connect opens a stream tracking the given keywords and following the
	// given author external ids. Either set may be empty.
	Connect(ctx context.Context, keywords, followIDs []string) (EventStream, error)
}

// ProfileClient performs remote bulk profile refreshes. Implementations
// fetch the profiles for the given external ids and persist the cached
// fields. Remote failures propagate to the caller; there is no local retry.
type ProfileClient interface {
	RefreshUsers(ctx context.Context, ids []string) error
}
