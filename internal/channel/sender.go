package channel

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"chatvri/internal/domain"
	"chatvri/internal/metrics"
)

// Sender delivers replies through the gateway with bounded retry.
// Client-class failures (4xx) are terminal; network and server-class
// failures are retried with exponential backoff plus jitter.
type Sender struct {
	gateway     domain.Gateway
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
}

type SenderOptions struct {
	Gateway     domain.Gateway
	Logger      *slog.Logger
	MaxAttempts int
	BaseBackoff time.Duration // shrunk in tests
}

func NewSender(opts SenderOptions) *Sender {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	return &Sender{
		gateway:     opts.Gateway,
		logger:      opts.Logger,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
	}
}

// Send delivers one message. Exhausting all attempts loses the message:
// that is logged loudly but never stops the pipeline.
func (s *Sender) Send(ctx context.Context, to, text string) domain.Outcome {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter before the retry.
			backoff := s.baseBackoff << (attempt - 1)
			backoff += time.Duration(rand.Int64N(int64(s.baseBackoff)))
			s.logger.Info("retrying send", "to", to, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return domain.OutcomeRetryable
			case <-time.After(backoff):
			}
		}

		status, err := s.gateway.SendText(ctx, to, text)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("sent after retry", "to", to, "attempt", attempt+1)
			}
			return domain.OutcomeSuccess
		}

		if status >= 400 && status < 500 {
			s.logger.Error("send rejected by gateway, not retrying",
				"to", to, "status", status, "error", err)
			metrics.SendFailures.Inc()
			return domain.OutcomeTerminal
		}

		s.logger.Warn("send failed", "to", to, "attempt", attempt+1, "error", err)
	}

	s.logger.Error("message lost: all send attempts failed",
		"to", to, "attempts", s.maxAttempts, "text_len", len(text))
	metrics.SendFailures.Inc()
	return domain.OutcomeRetryable
}
