package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chatvri/internal/domain"
)

// SQLiteStore implements domain.ConversationStore on a local SQLite
// file. It is the default backend for single-host deployments.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		phone       TEXT PRIMARY KEY,
		first_seen  DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		id          TEXT PRIMARY KEY,
		sender      TEXT NOT NULL REFERENCES users(phone),
		user_text   TEXT NOT NULL,
		bot_text    TEXT NOT NULL,
		backend     TEXT NOT NULL,
		latency_ms  INTEGER DEFAULT 0,
		docs_found  INTEGER DEFAULT 0,
		top_score   REAL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_sender ON exchanges(sender, created_at);

	CREATE TABLE IF NOT EXISTS search_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		sender      TEXT NOT NULL,
		query       TEXT NOT NULL,
		results     INTEGER DEFAULT 0,
		top_score   REAL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS error_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		message     TEXT NOT NULL,
		sender      TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_errors_time ON error_log(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, sender string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (phone) VALUES (?)
		 ON CONFLICT(phone) DO UPDATE SET last_seen = CURRENT_TIMESTAMP`,
		sender,
	)
	return err
}

func (s *SQLiteStore) SaveExchange(ctx context.Context, ex domain.Exchange) error {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, sender, user_text, bot_text, backend, latency_ms, docs_found, top_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Sender, ex.UserText, ex.BotText, ex.Backend,
		ex.Latency.Milliseconds(), ex.DocsFound, ex.TopScore, ex.Timestamp,
	)
	return err
}

func (s *SQLiteStore) History(ctx context.Context, sender string, limit int) ([]domain.Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, user_text, bot_text, backend, latency_ms, docs_found, top_score, created_at
		 FROM exchanges WHERE sender = ? ORDER BY created_at DESC LIMIT ?`,
		sender, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExchanges(rows)
}

func (s *SQLiteStore) LogSearch(ctx context.Context, sender, query string, results int, topScore float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_log (sender, query, results, top_score) VALUES (?, ?, ?, ?)`,
		sender, query, results, topScore,
	)
	return err
}

func (s *SQLiteStore) LogError(ctx context.Context, kind, message, sender string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_log (kind, message, sender) VALUES (?, ?, ?)`,
		kind, message, sender,
	)
	return err
}

func (s *SQLiteStore) Stats(ctx context.Context, day time.Time) (DailyStats, error) {
	start := day.Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	stats := DailyStats{Day: start}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT sender), COALESCE(AVG(latency_ms), 0),
		        COALESCE(AVG(CASE WHEN backend = 'no_context' THEN 1.0 ELSE 0.0 END), 0)
		 FROM exchanges WHERE created_at >= ? AND created_at < ?`,
		start, end,
	).Scan(&stats.Exchanges, &stats.Users, &stats.AvgLatencyMs, &stats.NoContextRate)
	if err != nil {
		return stats, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_log WHERE created_at >= ? AND created_at < ?`,
		start, end,
	).Scan(&stats.Searches); err != nil {
		return stats, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM error_log WHERE created_at >= ? AND created_at < ?`,
		start, end,
	).Scan(&stats.Errors)
	return stats, err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanExchanges is shared with the Postgres backend via the rowScanner
// interface both drivers' row types satisfy.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanExchanges(rows rowScanner) ([]domain.Exchange, error) {
	var out []domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		var latencyMs int64
		if err := rows.Scan(&ex.ID, &ex.Sender, &ex.UserText, &ex.BotText, &ex.Backend,
			&latencyMs, &ex.DocsFound, &ex.TopScore, &ex.Timestamp); err != nil {
			return nil, err
		}
		ex.Latency = time.Duration(latencyMs) * time.Millisecond
		out = append(out, ex)
	}
	return out, rows.Err()
}
