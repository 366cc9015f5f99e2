// Package store persists users, exchanges and diagnostic logs behind
// domain.ConversationStore, with SQLite and PostgreSQL backends.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatvri/internal/config"
	"chatvri/internal/domain"
)

// Open builds the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (domain.ConversationStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLiteStore(cfg.DBPath, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q (want sqlite or postgres)", cfg.Driver)
	}
}

// DailyStats summarizes one day of traffic for the stats CLI.
type DailyStats struct {
	Day           time.Time
	Users         int
	Exchanges     int
	Searches      int
	Errors        int
	AvgLatencyMs  float64
	NoContextRate float64
}

// StatsProvider is implemented by backends that can aggregate daily
// traffic. The CLI type-asserts for it.
type StatsProvider interface {
	Stats(ctx context.Context, day time.Time) (DailyStats, error)
}
