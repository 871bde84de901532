package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the admin HTTP server port.
	Port int

	// DatabasePath is the SQLite database file path.
	DatabasePath string

	// StreamURL is the provider's live stream WebSocket endpoint.
	StreamURL string

	// ProfileAPIURL is the base URL of the provider's profile lookup API.
	ProfileAPIURL string

	// TrackedKeywords are the stream keywords. May be empty, in which case
	// only replies to known posts are ever kept.
	TrackedKeywords []string

	// RecentWindow is how many recent posts seed the followed-author set.
	RecentWindow int

	// RefreshChunkSize is how many users each profile refresh call covers.
	RefreshChunkSize int

	// RefreshChunkDelay is the pause between profile refresh calls.
	RefreshChunkDelay time.Duration

	// RefreshSchedule is the cron spec for the user cache refresh job.
	RefreshSchedule string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              3000,
		DatabasePath:      "visionstream.db",
		StreamURL:         os.Getenv("VISION_STREAM_URL"),
		ProfileAPIURL:     os.Getenv("VISION_PROFILE_API_URL"),
		RecentWindow:      5000,
		RefreshChunkSize:  100,
		RefreshChunkDelay: 60 * time.Second,
		RefreshSchedule:   "0 4 * * *",
	}

	if cfg.StreamURL == "" {
		return nil, fmt.Errorf("VISION_STREAM_URL is required")
	}
	if cfg.ProfileAPIURL == "" {
		return nil, fmt.Errorf("VISION_PROFILE_API_URL is required")
	}

	if p := os.Getenv("VISION_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid VISION_PORT: %w", err)
		}
		cfg.Port = port
	}

	if path := os.Getenv("VISION_DB_PATH"); path != "" {
		cfg.DatabasePath = path
	}

	cfg.TrackedKeywords = splitKeywords(os.Getenv("VISION_TRACKED_KEYWORDS"))

	if w := os.Getenv("VISION_RECENT_WINDOW"); w != "" {
		window, err := strconv.Atoi(w)
		if err != nil || window < 1 {
			return nil, fmt.Errorf("invalid VISION_RECENT_WINDOW: %q", w)
		}
		cfg.RecentWindow = window
	}

	if s := os.Getenv("VISION_REFRESH_CHUNK_SIZE"); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil || size < 1 {
			return nil, fmt.Errorf("invalid VISION_REFRESH_CHUNK_SIZE: %q", s)
		}
		cfg.RefreshChunkSize = size
	}

	if d := os.Getenv("VISION_REFRESH_CHUNK_DELAY"); d != "" {
		delay, err := time.ParseDuration(d)
		if err != nil {
			return nil, fmt.Errorf("invalid VISION_REFRESH_CHUNK_DELAY: %w", err)
		}
		cfg.RefreshChunkDelay = delay
	}

	if sched := os.Getenv("VISION_REFRESH_SCHEDULE"); sched != "" {
		cfg.RefreshSchedule = sched
	}

	return cfg, nil
}

// splitKeywords parses a comma-separated keyword list, dropping empty parts.
func splitKeywords(raw string) []string {
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}
