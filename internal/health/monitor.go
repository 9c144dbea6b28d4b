// internal/health/monitor.go
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netrahq/netra/internal/database"
)

// Status grades one database's health.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Metric names produced per monitoring tick.
const (
	MetricPoolUsage    = "connection_pool_usage"
	MetricQueryLatency = "avg_query_latency_ms"
	MetricErrorRate    = "error_rate_per_min"
)

// Record is a time-sampled health snapshot for one database.
type Record struct {
	Database  string             `json:"database"`
	Status    Status             `json:"status"`
	Metrics   map[string]float64 `json:"metrics"`
	Message   string             `json:"message,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Thresholds define warning/critical bounds per metric.
type Thresholds struct {
	PoolUsageWarning     float64
	PoolUsageCritical    float64
	QueryLatencyWarning  float64 // ms
	QueryLatencyCritical float64 // ms
	ErrorRateWarning     float64 // errors/min
	ErrorRateCritical    float64 // errors/min
}

// DefaultThresholds returns the standard alerting bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PoolUsageWarning:     0.8,
		PoolUsageCritical:    0.95,
		QueryLatencyWarning:  500,
		QueryLatencyCritical: 2000,
		ErrorRateWarning:     5,
		ErrorRateCritical:    20,
	}
}

const (
	historyWindow = 100
	latencyWindow = 200
	errorWindow   = 5 * time.Minute
)

// Target is what the monitor needs from a database manager.
type Target interface {
	IsAvailable(ctx context.Context) bool
	ConnectionInfo(ctx context.Context) (database.ConnectionInfo, error)
}

type tracked struct {
	target    Target
	history   []Record
	latencies []float64
	errors    []time.Time
}

// Monitor polls registered database managers on a fixed interval,
// records bounded health history and raises alerts when thresholds are
// crossed. It is observability only, never on the request path.
type Monitor struct {
	mu         sync.Mutex
	databases  map[string]*tracked
	alerts     []*Alert
	thresholds Thresholds
	interval   time.Duration
	logger     *zap.Logger

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
	started bool
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the monitoring interval.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithThresholds overrides the alerting bounds.
func WithThresholds(t Thresholds) MonitorOption {
	return func(m *Monitor) {
		m.thresholds = t
	}
}

// NewMonitor creates a health monitor.
func NewMonitor(logger *zap.Logger, opts ...MonitorOption) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		databases:  make(map[string]*tracked),
		thresholds: DefaultThresholds(),
		interval:   30 * time.Second,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterDatabaseManager begins tracking a database with an empty
// history. Registration happens at boot, before concurrent reads.
func (m *Monitor) RegisterDatabaseManager(name string, target Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.databases[name] = &tracked{target: target}
}

// RecordQueryPerformance appends a latency sample for the database. The
// sample feeds the next health check; it never triggers an alert
// synchronously.
func (m *Monitor) RecordQueryPerformance(name string, latencyMS float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.databases[name]
	if !ok {
		return
	}
	tr.latencies = append(tr.latencies, latencyMS)
	if len(tr.latencies) > latencyWindow {
		tr.latencies = tr.latencies[len(tr.latencies)-latencyWindow:]
	}
}

// RecordDatabaseError appends an error timestamp for the database.
func (m *Monitor) RecordDatabaseError(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.databases[name]
	if !ok {
		return
	}
	tr.errors = append(tr.errors, time.Now())
	m.logger.Debug("database error recorded",
		zap.String("database", name),
		zap.Error(err))
}

// CheckAll runs one monitoring tick: every registered database gets
// exactly one Record. A failure against one database never aborts the
// others; it surfaces as an unhealthy record instead.
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.databases))
	for name := range m.databases {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		record := m.checkDatabase(ctx, name)
		m.appendRecord(name, record)
		m.analyzeTrends(name, record)
		exportRecord(record)
	}
}

func (m *Monitor) checkDatabase(ctx context.Context, name string) (record Record) {
	record = Record{
		Database:  name,
		Status:    StatusHealthy,
		Metrics:   make(map[string]float64),
		Timestamp: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			record.Status = StatusUnhealthy
			record.Message = fmt.Sprintf("health check panicked: %v", r)
			m.logger.Error("health check panicked",
				zap.String("database", name),
				zap.Any("panic", r))
		}
	}()

	m.mu.Lock()
	tr := m.databases[name]
	m.mu.Unlock()
	if tr == nil {
		record.Status = StatusUnhealthy
		record.Message = "database not registered"
		return record
	}

	if !tr.target.IsAvailable(ctx) {
		record.Status = StatusUnhealthy
		record.Message = "availability probe failed"
		return record
	}

	info, err := tr.target.ConnectionInfo(ctx)
	if err != nil {
		record.Status = StatusUnhealthy
		record.Message = fmt.Sprintf("connection info failed: %v", err)
		return record
	}

	if info.Total > 0 {
		record.Metrics[MetricPoolUsage] = float64(info.Active) / float64(info.Total)
	}
	record.Metrics[MetricQueryLatency] = m.avgLatency(name)
	record.Metrics[MetricErrorRate] = m.errorRate(name)

	record.Status = m.deriveStatus(record.Metrics)
	return record
}

func (m *Monitor) avgLatency(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr := m.databases[name]
	if tr == nil || len(tr.latencies) == 0 {
		return 0
	}
	var sum float64
	for _, l := range tr.latencies {
		sum += l
	}
	return sum / float64(len(tr.latencies))
}

func (m *Monitor) errorRate(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr := m.databases[name]
	if tr == nil {
		return 0
	}

	cutoff := time.Now().Add(-errorWindow)
	kept := tr.errors[:0]
	for _, ts := range tr.errors {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	tr.errors = kept

	return float64(len(tr.errors)) / errorWindow.Minutes()
}

func (m *Monitor) deriveStatus(metrics map[string]float64) Status {
	t := m.thresholds
	critical := metrics[MetricPoolUsage] >= t.PoolUsageCritical ||
		metrics[MetricQueryLatency] >= t.QueryLatencyCritical ||
		metrics[MetricErrorRate] >= t.ErrorRateCritical
	if critical {
		return StatusUnhealthy
	}

	warning := metrics[MetricPoolUsage] >= t.PoolUsageWarning ||
		metrics[MetricQueryLatency] >= t.QueryLatencyWarning ||
		metrics[MetricErrorRate] >= t.ErrorRateWarning
	if warning {
		return StatusDegraded
	}

	return StatusHealthy
}

func (m *Monitor) appendRecord(name string, record Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr := m.databases[name]
	if tr == nil {
		return
	}
	tr.history = append(tr.history, record)
	if len(tr.history) > historyWindow {
		tr.history = tr.history[len(tr.history)-historyWindow:]
	}
}

// analyzeTrends compares the record's metrics against the thresholds,
// raising at most one unresolved alert per database+metric and
// resolving alerts whose metric returned within bounds.
func (m *Monitor) analyzeTrends(name string, record Record) {
	type bound struct {
		metric   string
		warning  float64
		critical float64
	}
	bounds := []bound{
		{MetricPoolUsage, m.thresholds.PoolUsageWarning, m.thresholds.PoolUsageCritical},
		{MetricQueryLatency, m.thresholds.QueryLatencyWarning, m.thresholds.QueryLatencyCritical},
		{MetricErrorRate, m.thresholds.ErrorRateWarning, m.thresholds.ErrorRateCritical},
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range bounds {
		value, ok := record.Metrics[b.metric]

		var severity AlertSeverity
		switch {
		case ok && value >= b.critical:
			severity = AlertCritical
		case ok && value >= b.warning:
			severity = AlertWarning
		}

		existing := m.unresolvedAlertLocked(name, b.metric)

		if severity == "" {
			if existing != nil {
				existing.resolve()
				m.logger.Info("health alert resolved",
					zap.String("database", name),
					zap.String("metric", b.metric))
			}
			continue
		}

		if existing != nil {
			continue
		}

		alert := newAlert(name, b.metric, severity,
			fmt.Sprintf("%s is %.2f (threshold %.2f)", b.metric, value, b.warning))
		m.alerts = append(m.alerts, alert)
		m.logger.Warn("health alert raised",
			zap.String("database", name),
			zap.String("metric", b.metric),
			zap.String("severity", string(severity)),
			zap.Float64("value", value))
	}

	unresolvedAlertsGauge.Set(float64(m.unresolvedCountLocked()))
}

func (m *Monitor) unresolvedAlertLocked(database, metric string) *Alert {
	for _, a := range m.alerts {
		if !a.Resolved && a.Database == database && a.Metric == metric {
			return a
		}
	}
	return nil
}

func (m *Monitor) unresolvedCountLocked() int {
	n := 0
	for _, a := range m.alerts {
		if !a.Resolved {
			n++
		}
	}
	return n
}

// Alerts returns a copy of alerts, unresolved only unless includeResolved.
func (m *Monitor) Alerts(includeResolved bool) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if includeResolved || !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}

// History returns a copy of the bounded record history for a database.
func (m *Monitor) History(name string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr := m.databases[name]
	if tr == nil {
		return nil
	}
	out := make([]Record, len(tr.history))
	copy(out, tr.history)
	return out
}

// Summary aggregates the latest record per database.
type Summary struct {
	Databases        map[string]Record `json:"databases"`
	UnresolvedAlerts int               `json:"unresolved_alerts"`
}

// HealthSummary returns the latest record per database plus the
// unresolved alert count.
func (m *Monitor) HealthSummary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{Databases: make(map[string]Record, len(m.databases))}
	for name, tr := range m.databases {
		if len(tr.history) > 0 {
			s.Databases[name] = tr.history[len(tr.history)-1]
		}
	}
	s.UnresolvedAlerts = m.unresolvedCountLocked()
	return s
}

// Start launches the monitoring loop: one background task, never
// per-request.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CheckAll(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the monitoring loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopped.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}
