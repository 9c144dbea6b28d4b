// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PoolConfig tunes the sql.DB connection pool.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultPoolConfig returns the standard pool tuning.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Postgres manages the primary PostgreSQL connection.
type Postgres struct {
	url    string
	pool   PoolConfig
	db     *sql.DB
	failed atomic.Int64
}

// NewPostgres creates a Postgres manager. Connect must be called before
// use.
func NewPostgres(url string, pool PoolConfig) *Postgres {
	if pool.MaxOpenConns == 0 {
		pool = DefaultPoolConfig()
	}
	return &Postgres{url: url, pool: pool}
}

// Name implements Manager.
func (p *Postgres) Name() string { return "postgres" }

// Connect opens the pool and verifies connectivity.
func (p *Postgres) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", p.url)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(p.pool.MaxOpenConns)
	db.SetMaxIdleConns(p.pool.MaxIdleConns)
	db.SetConnMaxLifetime(p.pool.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		p.failed.Add(1)
		return fmt.Errorf("ping postgres: %w", err)
	}

	p.db = db
	return nil
}

// Ping verifies the connection with SELECT 1.
func (p *Postgres) Ping(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("postgres not connected")
	}
	var one int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("postgres probe: %w", err)
	}
	return nil
}

// IsAvailable reports whether the database answers a probe.
func (p *Postgres) IsAvailable(ctx context.Context) bool {
	return p.Ping(ctx) == nil
}

// ConnectionInfo implements Manager from sql.DB pool stats.
func (p *Postgres) ConnectionInfo(ctx context.Context) (ConnectionInfo, error) {
	if p.db == nil {
		return ConnectionInfo{}, fmt.Errorf("postgres not connected")
	}
	stats := p.db.Stats()
	return ConnectionInfo{
		Total:  stats.OpenConnections,
		Active: stats.InUse,
		Idle:   stats.Idle,
		Failed: int(p.failed.Load()),
	}, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// DB exposes the underlying pool for callers that run queries.
func (p *Postgres) DB() *sql.DB { return p.db }

// TableExists reports whether a public table exists.
func (p *Postgres) TableExists(ctx context.Context, table string) (bool, error) {
	if p.db == nil {
		return false, fmt.Errorf("postgres not connected")
	}
	query := `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	)`
	var exists bool
	if err := p.db.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}

// EnsureDefaultAssistant makes sure the default assistant row exists so
// the application has a working assistant on first boot.
func (p *Postgres) EnsureDefaultAssistant(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("postgres not connected")
	}
	query := `INSERT INTO assistants (id, name, created_at)
		VALUES ('default', 'Default Assistant', NOW())
		ON CONFLICT (id) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure default assistant: %w", err)
	}
	return nil
}
