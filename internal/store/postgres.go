package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatvri/internal/config"
	"chatvri/internal/domain"
)

// PostgresStore implements domain.ConversationStore on a pgx connection
// pool. Used when several bot instances share one database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	if cfg.PoolMax > 0 {
		poolCfg.MaxConns = int32(cfg.PoolMax)
	}
	if cfg.PoolMin > 0 {
		poolCfg.MinConns = int32(cfg.PoolMin)
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = time.Duration(cfg.AcquireTimeout) * time.Second
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		phone       TEXT PRIMARY KEY,
		first_seen  TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_seen   TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		id          TEXT PRIMARY KEY,
		sender      TEXT NOT NULL REFERENCES users(phone),
		user_text   TEXT NOT NULL,
		bot_text    TEXT NOT NULL,
		backend     TEXT NOT NULL,
		latency_ms  BIGINT NOT NULL DEFAULT 0,
		docs_found  INT NOT NULL DEFAULT 0,
		top_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_sender ON exchanges(sender, created_at);

	CREATE TABLE IF NOT EXISTS search_log (
		id          BIGSERIAL PRIMARY KEY,
		sender      TEXT NOT NULL,
		query       TEXT NOT NULL,
		results     INT NOT NULL DEFAULT 0,
		top_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS error_log (
		id          BIGSERIAL PRIMARY KEY,
		kind        TEXT NOT NULL,
		message     TEXT NOT NULL,
		sender      TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_errors_time ON error_log(created_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) UpsertUser(ctx context.Context, sender string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (phone) VALUES ($1)
		 ON CONFLICT (phone) DO UPDATE SET last_seen = now()`,
		sender,
	)
	return err
}

func (s *PostgresStore) SaveExchange(ctx context.Context, ex domain.Exchange) error {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exchanges (id, sender, user_text, bot_text, backend, latency_ms, docs_found, top_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ex.ID, ex.Sender, ex.UserText, ex.BotText, ex.Backend,
		ex.Latency.Milliseconds(), ex.DocsFound, ex.TopScore, ex.Timestamp,
	)
	return err
}

func (s *PostgresStore) History(ctx context.Context, sender string, limit int) ([]domain.Exchange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender, user_text, bot_text, backend, latency_ms, docs_found, top_score, created_at
		 FROM exchanges WHERE sender = $1 ORDER BY created_at DESC LIMIT $2`,
		sender, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExchanges(rows)
}

func (s *PostgresStore) LogSearch(ctx context.Context, sender, query string, results int, topScore float64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_log (sender, query, results, top_score) VALUES ($1, $2, $3, $4)`,
		sender, query, results, topScore,
	)
	return err
}

func (s *PostgresStore) LogError(ctx context.Context, kind, message, sender string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO error_log (kind, message, sender) VALUES ($1, $2, $3)`,
		kind, message, sender,
	)
	return err
}

func (s *PostgresStore) Stats(ctx context.Context, day time.Time) (DailyStats, error) {
	start := day.Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	stats := DailyStats{Day: start}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT sender), COALESCE(AVG(latency_ms), 0),
		        COALESCE(AVG(CASE WHEN backend = 'no_context' THEN 1.0 ELSE 0.0 END), 0)
		 FROM exchanges WHERE created_at >= $1 AND created_at < $2`,
		start, end,
	).Scan(&stats.Exchanges, &stats.Users, &stats.AvgLatencyMs, &stats.NoContextRate)
	if err != nil {
		return stats, err
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_log WHERE created_at >= $1 AND created_at < $2`,
		start, end,
	).Scan(&stats.Searches); err != nil {
		return stats, err
	}
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM error_log WHERE created_at >= $1 AND created_at < $2`,
		start, end,
	).Scan(&stats.Errors)
	return stats, err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
