/*
This file contains the shared HTTP plumbing for all protocol fetchers:
one client with timeouts, browser-style headers, a minimum delay between
requests, and bounded retries. Every fetcher goes through fetchJSON.
*/

package datafetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/stableyield/loopscout/internal/logger"
)

var clientLogger = logger.GetForComponent("fetch_client")

var (
	ErrRequestFailed  = errors.New("request failed")
	ErrBadStatus      = errors.New("unexpected HTTP status")
	ErrInvalidPayload = errors.New("invalid response payload")
)

const (
	maxRetries     = 3
	retryBackoff   = 2 * time.Second
	rateLimitDelay = 1 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client wraps an http.Client with the behavior every source needs.
type Client struct {
	http *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient returns a client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// fetchJSON performs the request and decodes the JSON response into out.
// A non-nil body is serialized as JSON and sent with a POST content type.
// Transient failures are retried with backoff; the last error wins.
func (c *Client) fetchJSON(ctx context.Context, method, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshaling request body: %w", ErrRequestFailed, err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt-1)):
			}
		}

		c.throttle()

		lastErr = c.doOnce(ctx, method, url, payload, out)
		if lastErr == nil {
			return nil
		}

		clientLogger.Warn().
			Err(lastErr).
			Str("url", url).
			Int("attempt", attempt).
			Int("maxRetries", maxRetries).
			Msg("Request attempt failed")
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %d from %s", ErrBadStatus, resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// throttle enforces the minimum delay between outbound requests. The lock is
// dropped while sleeping, so another caller may stamp lastRequest in the
// meantime; the elapsed time is re-checked after reacquiring until the delay
// actually holds.
func (c *Client) throttle() {
	c.mu.Lock()
	for {
		elapsed := time.Since(c.lastRequest)
		if elapsed >= rateLimitDelay {
			break
		}
		wait := rateLimitDelay - elapsed
		c.mu.Unlock()
		time.Sleep(wait)
		c.mu.Lock()
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}
