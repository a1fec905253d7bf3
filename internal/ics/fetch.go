package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// FetchTimeout bounds a single feed download.
const FetchTimeout = 15 * time.Second

// maxFeedBytes caps a feed body.
const maxFeedBytes = 8 << 20

// ErrNotModified is returned when the feed is unchanged since the last fetch.
var ErrNotModified = errors.New("feed not modified")

type cacheEntry struct {
	etag         string
	lastModified string
}

// Fetcher downloads feeds with conditional GET. Validators are kept in memory
// per URL, so the first fetch after a restart is always a full download.
type Fetcher struct {
	HTTP *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher returns a fetcher with the default timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTP:  &http.Client{Timeout: FetchTimeout},
		cache: map[string]cacheEntry{},
	}
}

// Fetch downloads feedURL. It returns ErrNotModified when the server answers
// 304 to the validators of the previous successful fetch.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", Redact(feedURL), err)
	}
	f.mu.Lock()
	prev, cached := f.cache[feedURL]
	f.mu.Unlock()
	if prev.etag != "" {
		req.Header.Set("If-None-Match", prev.etag)
	}
	if prev.lastModified != "" {
		req.Header.Set("If-Modified-Since", prev.lastModified)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", Redact(feedURL), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && cached:
		return nil, ErrNotModified
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: %s", Redact(feedURL), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read: %w", Redact(feedURL), err)
	}

	f.mu.Lock()
	f.cache[feedURL] = cacheEntry{etag: resp.Header.Get("ETag"), lastModified: resp.Header.Get("Last-Modified")}
	f.mu.Unlock()
	slog.Debug("ics: fetched feed", "url", Redact(feedURL), "bytes", len(body))
	return body, nil
}

// Redact reduces a feed URL to scheme and host; private feed URLs carry
// tokens in their path or query.
func Redact(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "ics://(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/..."
}
