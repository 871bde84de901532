package domain

import "time"

// Author is the identity attached to a post by the stream provider.
type Author struct {
	// ExternalID is the provider-assigned id of the account.
	ExternalID string

	// Handle is the account's short display handle.
	Handle string

	// Name is the account's full display name.
	Name string
}

// Post is a raw post ingested from the stream, keyed by the provider's
// external id. A post is an unassigned candidate until it is promoted to a
// Vision or a Reply; it is never more than one of those at once.
type Post struct {
	// ExternalID is the provider-assigned unique id of the post.
	ExternalID string

	Author Author

	// Text is the post body used for keyword matching.
	Text string

	// InReplyTo is the external id of the post this one replies to. Empty if
	// the post is not a reply. The referenced post may not be in the store.
	InReplyTo string

	// CreatedAt is when the post was seen on the stream.
	CreatedAt time.Time
}

// Vision is a thread root: a post promoted to open a civic conversation.
type Vision struct {
	ID int64

	// PostExternalID is the external id of the originating post. At most one
	// Vision exists per post.
	PostExternalID string

	// AuthorExternalID is the external id of the owning author.
	AuthorExternalID string

	// Title is a short label for listings, seeded from the post text.
	Title string

	// Text is the vision body. Operators may edit it after promotion.
	Text string

	// Category is one of the labels in Categories. Assigned by operators.
	Category string

	// Featured marks the vision for the home page.
	Featured bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reply is a post promoted to be part of a vision's conversation.
type Reply struct {
	ID int64

	// PostExternalID is the external id of the originating post. At most one
	// Reply exists per post.
	PostExternalID string

	// VisionID is the thread root this reply ultimately belongs to.
	VisionID int64

	AuthorExternalID string

	Text string

	CreatedAt time.Time
}

// Share records an external share/promotion of a vision. Shares are created
// through operator action only, never by the classification pipeline.
type Share struct {
	ID             int64
	VisionID       int64
	UserExternalID string
	CreatedAt      time.Time
}

// User is a cached profile for an account seen in the stream. Profile fields
// are refreshed in bulk by the batch refresher.
type User struct {
	ExternalID string
	Handle     string
	Name       string
	AvatarURL  string
	Bio        string

	// VisibleOnHome marks the user for the home page roster.
	VisibleOnHome bool

	// RefreshedAt is when the cached profile fields were last fetched.
	RefreshedAt time.Time
}

// Categories is the fixed label set for vision categorization.
var Categories = []string{
	"connectedness",
	"creativity",
	"economy",
	"education",
	"energy",
	"health",
	"living",
}

// ValidCategory reports whether c is one of the fixed vision categories.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
