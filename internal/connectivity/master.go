// internal/connectivity/master.go
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netrahq/netra/internal/config"
	"github.com/netrahq/netra/internal/database"
	"github.com/netrahq/netra/internal/degradation"
	"github.com/netrahq/netra/internal/health"
	"github.com/netrahq/netra/internal/retry"
	"github.com/netrahq/netra/internal/startup"
)

// Operation names routed through the retry executor.
const (
	OpPostgresConnection   = "postgres_connection"
	OpClickHouseConnection = "clickhouse_connection"
	OpRedisConnection      = "redis_connection"
)

// InitReport summarizes one InitializeAllDatabaseSystems run. Phase
// errors other than the startup-check policy are recorded here, never
// raised.
type InitReport struct {
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	Phases        map[string]string `json:"phases"`
	AnalyticsMock bool              `json:"analytics_mock"`
	Startup       *startup.Report   `json:"startup,omitempty"`
}

// Master wires the retry executor, degradation manager, health monitor
// and startup checker together at boot. It is built once by the host's
// composition root and passed explicitly; there are no package-level
// instances.
type Master struct {
	cfg    *config.Config
	logger *zap.Logger

	executor    *retry.Executor
	degradation *degradation.Manager
	health      *health.Monitor

	mu       sync.Mutex
	managers map[string]database.Manager
	checker  *startup.Checker
	started  bool
}

// MasterOption configures a Master.
type MasterOption func(*Master)

// WithManager registers a database manager under its own name,
// replacing any manager the config would have built for it.
func WithManager(m database.Manager) MasterOption {
	return func(master *Master) {
		master.managers[m.Name()] = m
	}
}

// NewMaster creates the connectivity façade. Managers for postgres,
// clickhouse and redis are built from the config URLs unless options
// supply replacements.
func NewMaster(cfg *config.Config, logger *zap.Logger, opts ...MasterOption) *Master {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Master{
		cfg:      cfg,
		logger:   logger,
		executor: retry.NewExecutor(logger),
		degradation: degradation.NewManager(logger,
			degradation.WithRefreshInterval(cfg.Degradation.RefreshInterval),
			degradation.WithMinimalThreshold(cfg.Degradation.MinimalThreshold)),
		health: health.NewMonitor(logger,
			health.WithInterval(cfg.Health.Interval),
			health.WithThresholds(health.Thresholds{
				PoolUsageWarning:     cfg.Health.PoolUsageWarning,
				PoolUsageCritical:    cfg.Health.PoolUsageCritical,
				QueryLatencyWarning:  cfg.Health.QueryLatencyWarning,
				QueryLatencyCritical: cfg.Health.QueryLatencyCritical,
				ErrorRateWarning:     5,
				ErrorRateCritical:    20,
			})),
		managers: make(map[string]database.Manager),
	}

	if cfg.MockMode() {
		m.managers["postgres"] = database.NewMock("postgres")
	} else if cfg.Database.URL != "" {
		m.managers["postgres"] = database.NewPostgres(cfg.Database.URL, database.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
	}
	if cfg.ClickHouseURL != "" {
		m.managers["clickhouse"] = database.NewClickHouse(cfg.ClickHouseURL)
	}
	if cfg.RedisURL != "" {
		m.managers["redis"] = database.NewRedis(cfg.RedisURL)
	}

	for _, opt := range opts {
		opt(m)
	}

	m.registerPolicies()
	return m
}

// registerPolicies binds per-operation retry behavior. Connection
// operations carry circuit breakers; the analytics store retries
// more gently since it is never load-bearing.
func (m *Master) registerPolicies() {
	m.executor.RegisterPolicy(OpPostgresConnection, retry.NewPolicy(
		retry.WithMaxAttempts(5),
		retry.WithBaseDelay(time.Second),
		retry.WithMaxDelay(30*time.Second),
		retry.WithStrategy(retry.StrategyExponential),
		retry.WithCircuitBreaker(5, time.Minute),
	))
	m.executor.RegisterPolicy(OpClickHouseConnection, retry.NewPolicy(
		retry.WithMaxAttempts(3),
		retry.WithBaseDelay(time.Second),
		retry.WithStrategy(retry.StrategyFibonacci),
	))
	m.executor.RegisterPolicy(OpRedisConnection, retry.NewPolicy(
		retry.WithMaxAttempts(3),
		retry.WithBaseDelay(500*time.Millisecond),
		retry.WithStrategy(retry.StrategyExponential),
		retry.WithCircuitBreaker(5, 30*time.Second),
	))
}

// Manager returns a registered database manager.
func (m *Master) Manager(name string) database.Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.managers[name]
}

// Executor exposes the retry executor for host operations.
func (m *Master) Executor() *retry.Executor { return m.executor }

// Degradation exposes the degradation manager for fallback
// registration.
func (m *Master) Degradation() *degradation.Manager { return m.degradation }

// Health exposes the health monitor.
func (m *Master) Health() *health.Monitor { return m.health }

// InitializeAllDatabaseSystems brings the full resilience stack up:
// primary connections, the analytics store with a permanent mock
// fallback, the background loops, and (when a startup context is
// given) the startup check battery. Only the startup-check policy
// error propagates; every other phase failure lands in the report.
func (m *Master) InitializeAllDatabaseSystems(ctx context.Context, sctx *startup.Context) (*InitReport, error) {
	report := &InitReport{
		Success: true,
		Phases:  make(map[string]string),
	}

	m.initPrimaryConnections(ctx, report)
	m.initAnalytics(ctx, report)
	m.startMonitoring(ctx, report)

	if sctx != nil {
		if err := m.runStartupChecks(ctx, sctx, report); err != nil {
			return report, err
		}
	}

	if report.Error != "" {
		report.Success = false
	}
	return report, nil
}

// initPrimaryConnections connects postgres and redis through the
// retry executor.
func (m *Master) initPrimaryConnections(ctx context.Context, report *InitReport) {
	for _, name := range []string{"postgres", "redis"} {
		mgr := m.Manager(name)
		if mgr == nil {
			report.Phases[name] = "not configured"
			continue
		}

		opName := OpPostgresConnection
		if name == "redis" {
			opName = OpRedisConnection
		}

		_, err := m.executor.Execute(ctx, opName, func(ctx context.Context) (any, error) {
			return nil, mgr.Connect(ctx)
		})
		if err != nil {
			report.Phases[name] = fmt.Sprintf("connect failed: %v", err)
			if name == "postgres" {
				m.recordPhaseError(report, fmt.Errorf("primary database: %w", err))
			} else {
				m.logger.Warn("auxiliary service unavailable",
					zap.String("service", name), zap.Error(err))
			}
			continue
		}
		report.Phases[name] = "connected"
	}
}

// initAnalytics connects the analytics store with a permanent
// fallback to a mock manager. Analytics problems degrade
// functionality; they never prevent backend startup.
func (m *Master) initAnalytics(ctx context.Context, report *InitReport) {
	mgr := m.Manager("clickhouse")
	if mgr == nil {
		report.Phases["clickhouse"] = "not configured"
		return
	}

	_, err := m.executor.Execute(ctx, OpClickHouseConnection, func(ctx context.Context) (any, error) {
		return nil, mgr.Connect(ctx)
	})
	if err == nil {
		report.Phases["clickhouse"] = "connected"
		return
	}

	m.logger.Warn("analytics store unavailable, falling back to mock",
		zap.Error(err))

	mock := database.NewMock("clickhouse")
	_ = mock.Connect(ctx)

	m.mu.Lock()
	m.managers["clickhouse"] = mock
	m.mu.Unlock()

	report.AnalyticsMock = true
	report.Phases["clickhouse"] = fmt.Sprintf("mock fallback: %v", err)
}

// startMonitoring registers every manager with the degradation manager
// and health monitor, then starts both background loops. Registration
// completes before the loops start, so the registries are read-only
// from then on.
func (m *Master) startMonitoring(ctx context.Context, report *InitReport) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		report.Phases["monitoring"] = "already running"
		return
	}
	m.started = true
	managers := make(map[string]database.Manager, len(m.managers))
	for name, mgr := range m.managers {
		managers[name] = mgr
	}
	m.mu.Unlock()

	for name, mgr := range managers {
		m.degradation.RegisterDatabaseManager(name, mgr)
		m.health.RegisterDatabaseManager(name, mgr)
	}
	m.degradation.RefreshStatus(ctx)
	m.degradation.Start(ctx)
	m.health.Start(ctx)

	report.Phases["monitoring"] = "started"
}

// runStartupChecks delegates to the startup checker. Its orchestration
// policy error is intentionally fatal and propagates to the caller.
func (m *Master) runStartupChecks(ctx context.Context, sctx *startup.Context, report *InitReport) error {
	checker := startup.NewChecker(m.cfg, sctx, m.logger)
	m.mu.Lock()
	m.checker = checker
	m.mu.Unlock()

	startupReport, err := checker.RunAllChecks(ctx)
	report.Startup = startupReport
	if err != nil {
		report.Success = false
		report.Error = err.Error()
		report.Phases["startup_checks"] = "failed"
		return err
	}
	report.Phases["startup_checks"] = "passed"
	return nil
}

func (m *Master) recordPhaseError(report *InitReport, err error) {
	report.Success = false
	if report.Error == "" {
		report.Error = err.Error()
	}
	m.logger.Error("initialization phase failed", zap.Error(err))
}

// WithConnection runs fn against a database with retry, recording
// latency and errors with the health monitor on every exit path.
func (m *Master) WithConnection(ctx context.Context, dbName, operationName string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var opErr error

	defer func() {
		latency := float64(time.Since(start)) / float64(time.Millisecond)
		m.health.RecordQueryPerformance(dbName, latency)
		if opErr != nil {
			m.health.RecordDatabaseError(dbName, opErr)
		}
	}()

	_, opErr = m.executor.Execute(ctx, operationName, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return opErr
}

// Status is the unified health snapshot.
type Status struct {
	ServiceLevel string                    `json:"service_level"`
	Databases    map[string]bool           `json:"databases"`
	Health       health.Summary            `json:"health"`
	Degradation  degradation.Stats         `json:"degradation"`
	Retries      map[string]retry.Snapshot `json:"retries"`
}

// HealthCheck returns the unified view across all subsystems.
func (m *Master) HealthCheck(ctx context.Context) Status {
	m.degradation.RefreshStatus(ctx)
	return Status{
		ServiceLevel: m.degradation.Level().String(),
		Databases:    m.degradation.DatabaseStatus(),
		Health:       m.health.HealthSummary(),
		Degradation:  m.degradation.Stats(),
		Retries: map[string]retry.Snapshot{
			OpPostgresConnection:   m.executor.Metrics(OpPostgresConnection),
			OpClickHouseConnection: m.executor.Metrics(OpClickHouseConnection),
			OpRedisConnection:      m.executor.Metrics(OpRedisConnection),
		},
	}
}

// ShutdownAllSystems stops the background loops and closes every
// manager. Partial cleanup failures are logged, never raised.
func (m *Master) ShutdownAllSystems(ctx context.Context) {
	m.health.Stop()
	m.degradation.Stop()

	m.mu.Lock()
	checker := m.checker
	managers := make(map[string]database.Manager, len(m.managers))
	for name, mgr := range m.managers {
		managers[name] = mgr
	}
	m.started = false
	m.mu.Unlock()

	if checker != nil {
		checker.Close()
	}

	for name, mgr := range managers {
		if err := mgr.Close(); err != nil {
			m.logger.Error("failed to close database manager",
				zap.String("database", name),
				zap.Error(err))
		}
	}

	m.logger.Info("all database systems shut down")
}
