// Package changelog serves the dashboard's release notes, fetched from
// a published JSON feed with a built-in fallback when the feed is
// unreachable.
package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Entry is one release in the feed.
type Entry struct {
	Version string   `json:"version"`
	Date    string   `json:"date"`
	Status  string   `json:"status"`
	Changes []string `json:"changes"`
}

// DefaultFeedTimeout bounds the outbound fetch.
const DefaultFeedTimeout = 8 * time.Second

// fallback is served when the feed cannot be fetched or parsed, so the
// dashboard always has something to show.
var fallback = []Entry{
	{
		Version: "Build 2.4.1",
		Date:    "Feb 2026",
		Status:  "Latest",
		Changes: []string{
			"Complete 100% UNC compliance for the latest engine patches.",
			"New 'Phantom Execution' mode for undetected background runs.",
			"Automated HWID reset system integrated directly into the dashboard.",
		},
	},
}

// Service fetches the changelog feed.
type Service struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewService creates a changelog service for the given feed URL.
func NewService(url string, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "changelog")),
	}
}

// Entries returns the current feed. The second return reports whether
// the entries came from a live fetch; false means the fallback was
// served.
func (s *Service) Entries(ctx context.Context) ([]Entry, bool) {
	entries, err := s.fetch(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "changelog fetch failed, serving fallback",
			slog.String("url", s.url),
			slog.String("error", err.Error()),
		)
		return fallback, false
	}
	return entries, true
}

func (s *Service) fetch(ctx context.Context) ([]Entry, error) {
	if s.url == "" {
		return nil, fmt.Errorf("no feed URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("feed is empty")
	}
	return entries, nil
}
