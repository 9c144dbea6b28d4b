// internal/health/monitor_test.go
package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/netrahq/netra/internal/database"
)

type fakeTarget struct {
	mu        sync.Mutex
	available bool
	info      database.ConnectionInfo
	infoErr   error
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		available: true,
		info:      database.ConnectionInfo{Total: 10, Active: 2, Idle: 8},
	}
}

func (f *fakeTarget) IsAvailable(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeTarget) ConnectionInfo(ctx context.Context) (database.ConnectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, f.infoErr
}

func (f *fakeTarget) set(fn func(*fakeTarget)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func TestMonitor(t *testing.T) {
	t.Run("healthy database produces a healthy record", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		m.RegisterDatabaseManager("postgres", newFakeTarget())

		m.CheckAll(context.Background())

		history := m.History("postgres")
		require.Len(t, history, 1)
		assert.Equal(t, StatusHealthy, history[0].Status)
		assert.InDelta(t, 0.2, history[0].Metrics[MetricPoolUsage], 0.001)
	})

	t.Run("one failing database does not abort the others", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		bad := newFakeTarget()
		bad.set(func(f *fakeTarget) { f.available = false })
		m.RegisterDatabaseManager("clickhouse", bad)
		m.RegisterDatabaseManager("postgres", newFakeTarget())

		m.CheckAll(context.Background())

		require.Len(t, m.History("clickhouse"), 1)
		require.Len(t, m.History("postgres"), 1)
		assert.Equal(t, StatusUnhealthy, m.History("clickhouse")[0].Status)
		assert.Equal(t, StatusHealthy, m.History("postgres")[0].Status)
	})

	t.Run("connection info failure is an unhealthy record", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		target := newFakeTarget()
		target.set(func(f *fakeTarget) { f.infoErr = errors.New("pool gone") })
		m.RegisterDatabaseManager("postgres", target)

		m.CheckAll(context.Background())

		record := m.History("postgres")[0]
		assert.Equal(t, StatusUnhealthy, record.Status)
		assert.Contains(t, record.Message, "pool gone")
	})

	t.Run("history is bounded", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		m.RegisterDatabaseManager("postgres", newFakeTarget())

		for i := 0; i < historyWindow+20; i++ {
			m.CheckAll(context.Background())
		}

		assert.Len(t, m.History("postgres"), historyWindow)
	})

	t.Run("latency samples feed the next record", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		m.RegisterDatabaseManager("postgres", newFakeTarget())

		m.RecordQueryPerformance("postgres", 100)
		m.RecordQueryPerformance("postgres", 300)
		m.CheckAll(context.Background())

		record := m.History("postgres")[0]
		assert.InDelta(t, 200, record.Metrics[MetricQueryLatency], 0.001)
	})

	t.Run("background loop produces records", func(t *testing.T) {
		m := NewMonitor(zap.NewNop(), WithInterval(10*time.Millisecond))
		m.RegisterDatabaseManager("postgres", newFakeTarget())

		m.Start(context.Background())
		defer m.Stop()

		assert.Eventually(t, func() bool {
			return len(m.History("postgres")) > 0
		}, time.Second, 5*time.Millisecond)
	})
}

func TestAlerts(t *testing.T) {
	hotPool := database.ConnectionInfo{Total: 10, Active: 9, Idle: 1}

	t.Run("pool saturation raises a warning once", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		target := newFakeTarget()
		target.set(func(f *fakeTarget) { f.info = hotPool })
		m.RegisterDatabaseManager("postgres", target)

		m.CheckAll(context.Background())
		m.CheckAll(context.Background())

		alerts := m.Alerts(false)
		require.Len(t, alerts, 1, "no duplicate alerts for the same metric")
		assert.Equal(t, AlertWarning, alerts[0].Severity)
		assert.Equal(t, MetricPoolUsage, alerts[0].Metric)
		assert.NotEmpty(t, alerts[0].ID)
	})

	t.Run("alert resolves when metric recovers", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		target := newFakeTarget()
		target.set(func(f *fakeTarget) { f.info = hotPool })
		m.RegisterDatabaseManager("postgres", target)

		m.CheckAll(context.Background())
		require.Len(t, m.Alerts(false), 1)

		target.set(func(f *fakeTarget) {
			f.info = database.ConnectionInfo{Total: 10, Active: 1, Idle: 9}
		})
		m.CheckAll(context.Background())

		assert.Empty(t, m.Alerts(false))
		resolved := m.Alerts(true)
		require.Len(t, resolved, 1)
		assert.True(t, resolved[0].Resolved)
		assert.False(t, resolved[0].ResolvedAt.IsZero())
	})

	t.Run("critical saturation grades critical", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		target := newFakeTarget()
		target.set(func(f *fakeTarget) {
			f.info = database.ConnectionInfo{Total: 10, Active: 10}
		})
		m.RegisterDatabaseManager("postgres", target)

		m.CheckAll(context.Background())

		record := m.History("postgres")[0]
		assert.Equal(t, StatusUnhealthy, record.Status)
		alerts := m.Alerts(false)
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertCritical, alerts[0].Severity)
	})

	t.Run("summary aggregates latest records and alerts", func(t *testing.T) {
		m := NewMonitor(zap.NewNop())
		m.RegisterDatabaseManager("postgres", newFakeTarget())
		bad := newFakeTarget()
		bad.set(func(f *fakeTarget) { f.available = false })
		m.RegisterDatabaseManager("clickhouse", bad)

		m.CheckAll(context.Background())

		s := m.HealthSummary()
		assert.Len(t, s.Databases, 2)
		assert.Equal(t, StatusHealthy, s.Databases["postgres"].Status)
		assert.Equal(t, StatusUnhealthy, s.Databases["clickhouse"].Status)
	})
}
