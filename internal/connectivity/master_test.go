// internal/connectivity/master_test.go
package connectivity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/netrahq/netra/internal/config"
	"github.com/netrahq/netra/internal/database"
	"github.com/netrahq/netra/internal/health"
	"github.com/netrahq/netra/internal/retry"
	"github.com/netrahq/netra/internal/startup"
)

// brokenManager fails every connection attempt. The error message
// classifies as fatal so tests do not sit through backoff delays.
type brokenManager struct {
	name     string
	closeErr error
	connects int
}

func (b *brokenManager) Name() string { return b.name }

func (b *brokenManager) Connect(ctx context.Context) error {
	b.connects++
	return errors.New("invalid connection string")
}

func (b *brokenManager) Ping(ctx context.Context) error {
	return errors.New("invalid connection string")
}

func (b *brokenManager) IsAvailable(ctx context.Context) bool { return false }

func (b *brokenManager) Close() error { return b.closeErr }

func (b *brokenManager) ConnectionInfo(ctx context.Context) (database.ConnectionInfo, error) {
	return database.ConnectionInfo{}, errors.New("invalid connection string")
}

func testMaster(t *testing.T, cfg *config.Config, opts ...MasterOption) *Master {
	t.Helper()
	m := NewMaster(cfg, zap.NewNop(), opts...)
	t.Cleanup(func() { m.ShutdownAllSystems(context.Background()) })
	return m
}

func devConfig() *config.Config {
	cfg := config.New()
	cfg.Environment = config.EnvDevelopment
	return cfg
}

func TestMaster_InitializeAllSystemsHealthy(t *testing.T) {
	// Arrange
	m := testMaster(t, devConfig(),
		WithManager(database.NewMock("postgres")),
		WithManager(database.NewMock("redis")),
		WithManager(database.NewMock("clickhouse")))

	// Act
	report, err := m.InitializeAllDatabaseSystems(context.Background(), nil)

	// Assert
	require.NoError(t, err)
	require.True(t, report.Success)
	assert.False(t, report.AnalyticsMock)
	assert.Equal(t, "connected", report.Phases["postgres"])
	assert.Equal(t, "connected", report.Phases["redis"])
	assert.Equal(t, "connected", report.Phases["clickhouse"])
	assert.Equal(t, "started", report.Phases["monitoring"])
}

func TestMaster_AnalyticsFallsBackToMock(t *testing.T) {
	// The analytics store is never load-bearing: connect failures swap
	// in a mock manager and startup keeps going.
	m := testMaster(t, devConfig(),
		WithManager(database.NewMock("postgres")),
		WithManager(&brokenManager{name: "clickhouse"}))

	report, err := m.InitializeAllDatabaseSystems(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.True(t, report.AnalyticsMock)
	assert.Contains(t, report.Phases["clickhouse"], "mock fallback")

	_, isMock := m.Manager("clickhouse").(*database.Mock)
	assert.True(t, isMock)
}

func TestMaster_PrimaryFailureRecordedNotRaised(t *testing.T) {
	m := testMaster(t, devConfig(),
		WithManager(&brokenManager{name: "postgres"}))

	report, err := m.InitializeAllDatabaseSystems(context.Background(), nil)

	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Contains(t, report.Error, "primary database")
	assert.Contains(t, report.Phases["postgres"], "connect failed")
}

func TestMaster_StartupCheckFailurePropagates(t *testing.T) {
	cfg := config.New()
	cfg.Environment = config.EnvStaging
	cfg.SecretKey = ""
	m := testMaster(t, cfg,
		WithManager(database.NewMock("postgres")))

	report, err := m.InitializeAllDatabaseSystems(context.Background(), &startup.Context{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging")
	assert.False(t, report.Success)
	assert.Equal(t, "failed", report.Phases["startup_checks"])
	require.NotNil(t, report.Startup)
}

func TestMaster_WithConnectionRoutesThroughExecutor(t *testing.T) {
	m := testMaster(t, devConfig(),
		WithManager(database.NewMock("postgres")))
	_, err := m.InitializeAllDatabaseSystems(context.Background(), nil)
	require.NoError(t, err)

	calls := 0
	err = m.WithConnection(context.Background(), "postgres", "test_query", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), m.Executor().Metrics("test_query").TotalAttempts)
}

func TestMaster_WithConnectionRecordsErrors(t *testing.T) {
	m := testMaster(t, devConfig(),
		WithManager(database.NewMock("postgres")))
	_, err := m.InitializeAllDatabaseSystems(context.Background(), nil)
	require.NoError(t, err)

	// Single attempt so the failure surfaces without backoff sleeps.
	m.Executor().RegisterPolicy("bad_query", retry.NewPolicy(retry.WithMaxAttempts(1)))

	opErr := errors.New("relation does not exist")
	err = m.WithConnection(context.Background(), "postgres", "bad_query", func(ctx context.Context) error {
		return opErr
	})
	require.Error(t, err)

	// A monitoring tick after the failure must report a nonzero error
	// rate and the observed latency sample.
	m.Health().CheckAll(context.Background())
	history := m.Health().History("postgres")
	require.NotEmpty(t, history)
	latest := history[len(history)-1]
	assert.Greater(t, latest.Metrics[health.MetricErrorRate], 0.0)
	assert.GreaterOrEqual(t, latest.Metrics[health.MetricQueryLatency], 0.0)
}

func TestMaster_HealthCheckSnapshot(t *testing.T) {
	m := testMaster(t, devConfig(),
		WithManager(database.NewMock("postgres")),
		WithManager(database.NewMock("redis")))
	_, err := m.InitializeAllDatabaseSystems(context.Background(), nil)
	require.NoError(t, err)

	status := m.HealthCheck(context.Background())

	assert.Equal(t, "full_service", status.ServiceLevel)
	assert.True(t, status.Databases["postgres"])
	assert.True(t, status.Databases["redis"])
	assert.Contains(t, status.Retries, OpPostgresConnection)
}

func TestMaster_HealthCheckReflectsOutage(t *testing.T) {
	pg := database.NewMock("postgres")
	m := testMaster(t, devConfig(),
		WithManager(pg),
		WithManager(database.NewMock("redis")))
	_, err := m.InitializeAllDatabaseSystems(context.Background(), nil)
	require.NoError(t, err)

	pg.SetAvailable(false)
	status := m.HealthCheck(context.Background())

	assert.NotEqual(t, "full_service", status.ServiceLevel)
	assert.False(t, status.Databases["postgres"])
}

func TestMaster_ShutdownToleratesCloseFailures(t *testing.T) {
	m := testMaster(t, devConfig(),
		WithManager(&brokenManager{name: "postgres", closeErr: errors.New("already closed")}),
		WithManager(database.NewMock("redis")))
	_, err := m.InitializeAllDatabaseSystems(context.Background(), nil)
	require.NoError(t, err)

	// Act: must not panic and must close the healthy manager too.
	m.ShutdownAllSystems(context.Background())
}
