package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/metrics"
)

// errRateLimitResponse marks a single rate-limited response inside request.
var errRateLimitResponse = errors.New("rate limit response")

// maxBodyBytes caps how much of an API response is read.
const maxBodyBytes = 4 << 20

// request runs call until it succeeds, fails for any reason other than a
// rate limit, or has been rate limited more than maxRetries times. Between
// attempts it sleeps retryDelay, returning early if ctx is done.
func (r *Resolver) request(ctx context.Context, api string, call func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := call(ctx)
		switch {
		case err == nil:
			metrics.ExternalRequests.WithLabelValues(api, "ok").Inc()
			return nil
		case !errors.Is(err, errRateLimitResponse):
			metrics.ExternalRequests.WithLabelValues(api, "error").Inc()
			return err
		}

		metrics.ExternalRequests.WithLabelValues(api, "rate_limited").Inc()
		if attempt >= r.maxRetries {
			r.logger.Error("mapping API rate limit retries exhausted", "api", api, "retries", r.maxRetries)
			return fmt.Errorf("%s: %w after %d retries", api, ErrRateLimited, r.maxRetries)
		}
		r.logger.Warn("mapping API rate limited, retrying", "api", api, "attempt", attempt+1, "delay", r.retryDelay)

		t := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// doJSON sends req and decodes a 2xx body into out. HTTP 429 becomes
// errRateLimitResponse; any other non-2xx status or an undecodable body is an
// ErrBadResponse.
func (r *Resolver) doJSON(req *http.Request, api string, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", api, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", api, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return errRateLimitResponse
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Error("mapping API error response", "api", api, "status", resp.StatusCode, "body", truncate(body, 512))
		return fmt.Errorf("%s: %w: HTTP %d", api, ErrBadResponse, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		r.logger.Error("mapping API malformed response", "api", api, "status", resp.StatusCode, "err", err)
		return fmt.Errorf("%s: %w: %v", api, ErrBadResponse, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
