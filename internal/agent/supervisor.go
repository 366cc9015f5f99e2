package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatvri/internal/domain"
)

// Supervisor runs fire-and-forget persistence work on tracked
// goroutines so a shutdown can drain in-flight writes instead of
// losing them. Store failures are logged and retried a bounded number
// of times; they never reach the user.
type Supervisor struct {
	store   domain.ConversationStore
	logger  *slog.Logger
	retries int
	wg      sync.WaitGroup
}

func NewSupervisor(store domain.ConversationStore, retries int, logger *slog.Logger) *Supervisor {
	if retries < 0 {
		retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		store:   store,
		logger:  logger.With("component", "persist"),
		retries: retries,
	}
}

// SaveExchange persists an exchange asynchronously.
func (s *Supervisor) SaveExchange(ex domain.Exchange) {
	s.run("save exchange", func(ctx context.Context) error {
		if err := s.store.UpsertUser(ctx, ex.Sender); err != nil {
			return err
		}
		return s.store.SaveExchange(ctx, ex)
	})
}

// LogSearch records a retrieval asynchronously.
func (s *Supervisor) LogSearch(sender, query string, results int, topScore float64) {
	s.run("log search", func(ctx context.Context) error {
		return s.store.LogSearch(ctx, sender, query, results, topScore)
	})
}

// LogError records a pipeline error asynchronously.
func (s *Supervisor) LogError(kind, message, sender string) {
	s.run("log error", func(ctx context.Context) error {
		return s.store.LogError(ctx, kind, message, sender)
	})
}

func (s *Supervisor) run(what string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Independent of any request context: the write should land
		// even when the triggering request is already done.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		for attempt := 0; attempt <= s.retries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					s.logger.Error("store write abandoned", "op", what, "error", ctx.Err())
					return
				case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
				}
			}
			if err = fn(ctx); err == nil {
				return
			}
		}
		s.logger.Error("store write failed", "op", what, "error", err)
	}()
}

// Wait blocks until all in-flight writes finish.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
