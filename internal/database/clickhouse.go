// internal/database/clickhouse.go
package database

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouse manages the analytics store connection.
type ClickHouse struct {
	url    string
	conn   driver.Conn
	failed atomic.Int64
}

// NewClickHouse creates a ClickHouse manager from a DSN
// (clickhouse://host:9000/db). Connect must be called before use.
func NewClickHouse(url string) *ClickHouse {
	return &ClickHouse{url: url}
}

// Name implements Manager.
func (c *ClickHouse) Name() string { return "clickhouse" }

// Connect opens the native connection and verifies it.
func (c *ClickHouse) Connect(ctx context.Context) error {
	opts, err := clickhouse.ParseDSN(c.url)
	if err != nil {
		return fmt.Errorf("parse clickhouse DSN: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		c.failed.Add(1)
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	c.conn = conn
	return nil
}

// Ping verifies the connection.
func (c *ClickHouse) Ping(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("clickhouse not connected")
	}
	if err := c.conn.Ping(ctx); err != nil {
		c.failed.Add(1)
		return fmt.Errorf("clickhouse probe: %w", err)
	}
	return nil
}

// IsAvailable reports whether the store answers a probe.
func (c *ClickHouse) IsAvailable(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// ConnectionInfo implements Manager from the driver's pool stats.
func (c *ClickHouse) ConnectionInfo(ctx context.Context) (ConnectionInfo, error) {
	if c.conn == nil {
		return ConnectionInfo{}, fmt.Errorf("clickhouse not connected")
	}
	stats := c.conn.Stats()
	return ConnectionInfo{
		Total:  stats.Open + stats.Idle,
		Active: stats.Open,
		Idle:   stats.Idle,
		Failed: int(c.failed.Load()),
	}, nil
}

// Close closes the connection.
func (c *ClickHouse) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Conn exposes the native connection for analytics queries.
func (c *ClickHouse) Conn() driver.Conn { return c.conn }
