package domain

import "context"

// ConversationStore persists exchanges and serves short conversation
// history. Implementations are safe for concurrent use.
type ConversationStore interface {
	// UpsertUser registers a sender (or refreshes last-seen).
	UpsertUser(ctx context.Context, sender string) error

	// SaveExchange writes one exchange. Callers treat failures as
	// best-effort: they are logged, never surfaced to the user.
	SaveExchange(ctx context.Context, ex Exchange) error

	// History returns the sender's most recent exchanges, newest first.
	History(ctx context.Context, sender string, limit int) ([]Exchange, error)

	// LogSearch records a knowledge-base lookup for later analysis.
	LogSearch(ctx context.Context, sender, query string, results int, topScore float64) error

	// LogError records a pipeline error.
	LogError(ctx context.Context, kind, message, sender string) error

	Ping(ctx context.Context) error
	Close() error
}
