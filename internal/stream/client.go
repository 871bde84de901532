package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/openplans/visionstream/internal/domain"
)

// Client connects to the provider's live post stream over WebSocket.
type Client struct {
	url    string
	logger *slog.Logger
}

// NewClient creates a stream client for the given WebSocket endpoint.
func NewClient(streamURL string, logger *slog.Logger) *Client {
	return &Client{url: streamURL, logger: logger}
}

// Connect opens a stream tracking the given keywords and following the given
// author external ids. Either set may be empty.
func (c *Client) Connect(ctx context.Context, keywords, followIDs []string) (domain.EventStream, error) {
	wsURL, err := c.buildURL(keywords, followIDs)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	c.logger.Info("connected to stream")
	return &connection{conn: conn, logger: c.logger}, nil
}

func (c *Client) buildURL(keywords, followIDs []string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}

	q := u.Query()
	if len(keywords) > 0 {
		q.Set("track", strings.Join(keywords, ","))
	}
	if len(followIDs) > 0 {
		q.Set("follow", strings.Join(followIDs, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connection is one live stream session.
type connection struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// Next reads messages until one decodes to an event. Undecodable messages
// are logged and skipped.
func (s *connection) Next(ctx context.Context) (*domain.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse stream event", "error", err)
			continue
		}
		return event, nil
	}
}

// Close closes the underlying connection.
func (s *connection) Close() error {
	return s.conn.Close()
}
