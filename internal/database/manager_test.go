// internal/database/manager_test.go
package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockManager(t *testing.T) {
	t.Run("available by default", func(t *testing.T) {
		m := NewMock("clickhouse")

		require.NoError(t, m.Connect(context.Background()))
		assert.True(t, m.IsAvailable(context.Background()))
		assert.NoError(t, m.Ping(context.Background()))

		info, err := m.ConnectionInfo(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, info.Total)
	})

	t.Run("flipping availability fails probes", func(t *testing.T) {
		m := NewMock("postgres")
		m.SetAvailable(false)

		assert.False(t, m.IsAvailable(context.Background()))
		assert.Error(t, m.Ping(context.Background()))
	})
}

func TestManagersBeforeConnect(t *testing.T) {
	t.Run("postgres refuses probes before connect", func(t *testing.T) {
		p := NewPostgres("postgres://localhost/netra", PoolConfig{})

		assert.Error(t, p.Ping(context.Background()))
		assert.False(t, p.IsAvailable(context.Background()))
		_, err := p.ConnectionInfo(context.Background())
		assert.Error(t, err)
		assert.NoError(t, p.Close())
	})

	t.Run("clickhouse refuses probes before connect", func(t *testing.T) {
		c := NewClickHouse("clickhouse://localhost:9000/analytics")

		assert.Error(t, c.Ping(context.Background()))
		_, err := c.ConnectionInfo(context.Background())
		assert.Error(t, err)
		assert.NoError(t, c.Close())
	})

	t.Run("redis refuses probes before connect", func(t *testing.T) {
		r := NewRedis("redis://localhost:6379/0")

		assert.Error(t, r.Ping(context.Background()))
		_, err := r.ConnectionInfo(context.Background())
		assert.Error(t, err)
		assert.NoError(t, r.Close())
	})

	t.Run("redis rejects malformed URLs", func(t *testing.T) {
		r := NewRedis("not-a-url")
		assert.Error(t, r.Connect(context.Background()))
	})
}
