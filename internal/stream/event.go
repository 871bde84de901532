package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openplans/visionstream/internal/domain"
)

// wireCreatedAt is the provider's post timestamp layout.
const wireCreatedAt = "Mon Jan 02 15:04:05 -0700 2006"

// wireEnvelope is the raw JSON structure of one stream message. A message is
// a disconnect notice, a delete notice, or a post.
type wireEnvelope struct {
	Disconnect *wireDisconnect `json:"disconnect,omitempty"`
	Delete     *wireDelete     `json:"delete,omitempty"`

	ID        string          `json:"id_str"`
	Text      string          `json:"text"`
	CreatedAt string          `json:"created_at"`
	User      *wireUser       `json:"user,omitempty"`
	InReplyTo string          `json:"in_reply_to_status_id_str"`
	Reshared  json.RawMessage `json:"retweeted_status,omitempty"`
}

// wireDisconnect is the provider's stream-closing notice.
type wireDisconnect struct {
	Reason string `json:"reason"`
	Code   int    `json:"code"`
}

// wireDelete asks the consumer to remove a previously delivered post.
type wireDelete struct {
	Status struct {
		ID string `json:"id_str"`
	} `json:"status"`
}

// wireUser is the author block of a post message.
type wireUser struct {
	ID         string `json:"id_str"`
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

func parseEvent(data []byte) (*domain.Event, error) {
	var raw wireEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	if raw.Disconnect != nil {
		return &domain.Event{
			Kind: domain.EventDisconnect,
			Disconnect: &domain.Disconnect{
				Reason: raw.Disconnect.Reason,
				Code:   raw.Disconnect.Code,
			},
		}, nil
	}

	if raw.Delete != nil {
		return &domain.Event{
			Kind:             domain.EventDelete,
			DeleteExternalID: raw.Delete.Status.ID,
		}, nil
	}

	if raw.ID == "" || raw.User == nil {
		return nil, fmt.Errorf("post event missing id or user")
	}

	createdAt := time.Now().UTC()
	if raw.CreatedAt != "" {
		if parsed, err := time.Parse(wireCreatedAt, raw.CreatedAt); err == nil {
			createdAt = parsed.UTC()
		}
	}

	return &domain.Event{
		Kind: domain.EventPost,
		Post: &domain.Post{
			ExternalID: raw.ID,
			Author: domain.Author{
				ExternalID: raw.User.ID,
				Handle:     raw.User.ScreenName,
				Name:       raw.User.Name,
			},
			Text:      raw.Text,
			InReplyTo: raw.InReplyTo,
			CreatedAt: createdAt,
		},
		Reshare: len(raw.Reshared) > 0,
	}, nil
}
