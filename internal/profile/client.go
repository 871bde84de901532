package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openplans/visionstream/internal/domain"
)

// Client fetches user profiles from the provider's bulk lookup endpoint and
// persists the cached fields. Implements domain.ProfileClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	users      domain.UserStore
	logger     *slog.Logger
}

// NewClient creates a profile client against the given API base URL.
func NewClient(baseURL string, users domain.UserStore, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		users:  users,
		logger: logger,
	}
}

// RefreshUsers fetches the profiles for the given external ids and upserts
// their cached fields. Remote failures propagate; the caller decides on
// retry policy.
func (c *Client) RefreshUsers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var profiles []userPayload
	if err := c.post(ctx, "/users/lookup", lookupRequest{IDs: ids}, &profiles); err != nil {
		return fmt.Errorf("lookup users: %w", err)
	}

	now := time.Now().UTC()
	for _, p := range profiles {
		user := &domain.User{
			ExternalID:  p.ID,
			Handle:      p.ScreenName,
			Name:        p.Name,
			AvatarURL:   p.AvatarURL,
			Bio:         p.Bio,
			RefreshedAt: now,
		}
		if err := c.users.UpsertUser(ctx, user); err != nil {
			return fmt.Errorf("store profile %s: %w", p.ID, err)
		}
	}

	c.logger.Info("refreshed user profiles", "requested", len(ids), "received", len(profiles))
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

type lookupRequest struct {
	IDs []string `json:"ids"`
}

type userPayload struct {
	ID         string `json:"id_str"`
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
	AvatarURL  string `json:"profile_image_url"`
	Bio        string `json:"description"`
}
