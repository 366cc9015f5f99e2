package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// maxSendAttempts bounds how often one completion request is sent. The
// user is waiting on WhatsApp, so the budget stays small and failover
// to the next provider happens instead.
const maxSendAttempts = 3

// transientError is a response worth retrying: rate limiting or a
// server-side failure.
type transientError struct {
	status int
	body   string
}

func (e *transientError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

// sendWithRetry sends the request produced by build, retrying transient
// failures (network errors, 5xx, 429) with a doubling backoff plus
// jitter. The request is rebuilt per attempt because its body is
// consumed on send.
func sendWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(1<<(attempt-2)) * time.Second
			wait += time.Duration(rand.Int64N(int64(wait/2 + 1)))
			logger.Warn("retrying provider request",
				"attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = &transientError{status: resp.StatusCode, body: string(body)}
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxSendAttempts, lastErr)
}
