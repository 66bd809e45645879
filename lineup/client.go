package lineup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alorle/pvr-manager/cache"
	"github.com/alorle/pvr-manager/logging"
)

// Client fetches backend channel lineups over HTTP with a cache-first
// strategy: fresh cache is served without touching the backend, and stale
// cache is kept as a fallback when the backend is unreachable.
type Client struct {
	client  *http.Client
	storage cache.Storage
	ttl     time.Duration
	log     *logging.Logger
}

// NewClient creates a lineup client. storage may be nil to disable caching.
func NewClient(timeout time.Duration, storage cache.Storage, ttl time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.New(logging.INFO)
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		storage: storage,
		ttl:     ttl,
		log:     logger.WithComponent("lineup"),
	}
}

// Fetch returns the parsed lineup served at url.
func (c *Client) Fetch(ctx context.Context, url string) ([]Entry, error) {
	content, err := c.fetchRaw(ctx, url)
	if err != nil {
		return nil, err
	}
	return Parse(content), nil
}

func (c *Client) fetchRaw(ctx context.Context, url string) ([]byte, error) {
	if c.storage == nil {
		return c.fetchFromURL(ctx, url)
	}

	cacheKey := cache.DeriveKeyFromURL(url)

	entry, cacheErr := c.storage.Get(cacheKey)
	if cacheErr == nil {
		expired, expErr := c.storage.IsExpired(cacheKey, c.ttl)
		if expErr == nil && !expired {
			c.log.Debug("Serving cached lineup", logging.Fields{
				"url": url,
				"age": time.Since(entry.Timestamp).String(),
			})
			return entry.Content, nil
		}
	}

	content, fetchErr := c.fetchFromURL(ctx, url)
	if fetchErr == nil {
		if setErr := c.storage.Set(cacheKey, content); setErr != nil {
			c.log.Warn("Failed to update lineup cache", logging.Fields{
				"url":   url,
				"error": setErr.Error(),
			})
		}
		return content, nil
	}

	if cacheErr != nil {
		return nil, fmt.Errorf("lineup fetch failed and no cache available: %w", fetchErr)
	}

	c.log.Warn("Serving stale lineup cache", logging.Fields{
		"url":   url,
		"age":   time.Since(entry.Timestamp).String(),
		"error": fetchErr.Error(),
	})
	return entry.Content, nil
}

func (c *Client) fetchFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building lineup request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lineup request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.Warn("Failed to close lineup response body", logging.Fields{
				"error": closeErr.Error(),
			})
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lineup request returned status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading lineup response: %w", err)
	}
	return content, nil
}
