// internal/degradation/manager.go
package degradation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ServiceLevel summarizes how many registered databases are available.
type ServiceLevel int

const (
	FullService     ServiceLevel = iota // All databases available
	DegradedService                     // Some databases unavailable
	MinimalService                      // Most databases unavailable
	NoService                           // No database available
)

// String returns the service level name.
func (l ServiceLevel) String() string {
	switch l {
	case FullService:
		return "full_service"
	case DegradedService:
		return "degraded_service"
	case MinimalService:
		return "minimal_service"
	case NoService:
		return "no_service"
	default:
		return "unknown"
	}
}

// AvailabilityProbe answers whether a database manager can currently
// serve traffic.
type AvailabilityProbe interface {
	IsAvailable(ctx context.Context) bool
}

// FallbackHandler produces a degraded result for an operation whose
// primary path failed. It receives the primary call site's kwargs.
type FallbackHandler func(ctx context.Context, kwargs map[string]any) (any, error)

// fallback is one registered degradable operation.
type fallback struct {
	handler           FallbackHandler
	requiredDatabases []string
	cacheTTL          time.Duration

	mu       sync.Mutex
	cached   any
	cachedAt time.Time
}

// Stats are the manager's running counters.
type Stats struct {
	PrimaryFailures    int64 `json:"primary_failures"`
	FallbackOperations int64 `json:"fallback_operations"`
}

// Manager routes operations around unavailable databases. Operations
// with a registered fallback degrade silently; all others surface the
// original error so unexpected failures are never masked.
type Manager struct {
	mu        sync.RWMutex
	databases map[string]AvailabilityProbe
	fallbacks map[string]*fallback
	status    map[string]bool
	level     ServiceLevel
	stats     Stats

	interval         time.Duration
	minimalThreshold float64
	logger           *zap.Logger

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
	started bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRefreshInterval sets the availability polling interval.
func WithRefreshInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.interval = d
	}
}

// WithMinimalThreshold sets the available fraction below which the
// service level drops from degraded to minimal.
func WithMinimalThreshold(f float64) ManagerOption {
	return func(m *Manager) {
		m.minimalThreshold = f
	}
}

// NewManager creates a degradation manager.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		databases:        make(map[string]AvailabilityProbe),
		fallbacks:        make(map[string]*fallback),
		status:           make(map[string]bool),
		level:            FullService,
		interval:         30 * time.Second,
		minimalThreshold: 0.5,
		logger:           logger,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterDatabaseManager adds a database to the availability registry.
// Registration happens at boot, before any concurrent reads.
func (m *Manager) RegisterDatabaseManager(name string, probe AvailabilityProbe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.databases[name] = probe
	m.status[name] = true
}

// RegisterFallback associates an operation name with a degradable
// handler. A zero cacheTTL disables fallback-result caching. An empty
// requiredDatabases set makes the fallback an unconditional last resort.
func (m *Manager) RegisterFallback(operation string, handler FallbackHandler, requiredDatabases []string, cacheTTL time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[operation] = &fallback{
		handler:           handler,
		requiredDatabases: requiredDatabases,
		cacheTTL:          cacheTTL,
	}
}

// ExecuteWithDegradation tries primary and, on failure, the registered
// fallback for operation. Without a fallback the original error is
// returned. Retrying is the retry executor's job, not this one's.
func (m *Manager) ExecuteWithDegradation(ctx context.Context, operation string, primary func(ctx context.Context) (any, error), kwargs map[string]any) (any, error) {
	result, err := primary(ctx)
	if err == nil {
		return result, nil
	}

	m.mu.Lock()
	m.stats.PrimaryFailures++
	fb := m.fallbacks[operation]
	var down []string
	if fb != nil {
		for _, name := range fb.requiredDatabases {
			if !m.status[name] {
				down = append(down, name)
			}
		}
	}
	m.mu.Unlock()

	if fb == nil {
		return nil, err
	}

	m.logger.Warn("primary operation failed, using fallback",
		zap.String("operation", operation),
		zap.Strings("unavailable_databases", down),
		zap.Error(err))

	if cached, ok := fb.cachedResult(); ok {
		m.countFallback()
		return cached, nil
	}

	fbResult, fbErr := fb.handler(ctx, kwargs)
	if fbErr != nil {
		m.logger.Error("fallback handler failed",
			zap.String("operation", operation),
			zap.Error(fbErr))
		return nil, fbErr
	}

	fb.storeResult(fbResult)
	m.countFallback()
	return fbResult, nil
}

func (m *Manager) countFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.FallbackOperations++
}

func (f *fallback) cachedResult() (any, bool) {
	if f.cacheTTL <= 0 {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached == nil || time.Since(f.cachedAt) > f.cacheTTL {
		return nil, false
	}
	return f.cached, true
}

func (f *fallback) storeResult(result any) {
	if f.cacheTTL <= 0 || result == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = result
	f.cachedAt = time.Now()
}

// RefreshStatus polls every registered probe and recomputes the service
// level. Called by the background loop and available on demand.
func (m *Manager) RefreshStatus(ctx context.Context) {
	m.mu.RLock()
	probes := make(map[string]AvailabilityProbe, len(m.databases))
	for name, p := range m.databases {
		probes[name] = p
	}
	m.mu.RUnlock()

	status := make(map[string]bool, len(probes))
	for name, probe := range probes {
		status[name] = probe.IsAvailable(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	available := 0
	for name, up := range status {
		if m.status[name] != up {
			m.logger.Info("database availability changed",
				zap.String("database", name),
				zap.Bool("available", up))
		}
		m.status[name] = up
		if up {
			available++
		}
	}

	m.level = computeLevel(available, len(status), m.minimalThreshold)
}

func computeLevel(available, total int, minimalThreshold float64) ServiceLevel {
	if total == 0 {
		return FullService
	}
	switch {
	case available == total:
		return FullService
	case available == 0:
		return NoService
	case float64(available)/float64(total) < minimalThreshold:
		return MinimalService
	default:
		return DegradedService
	}
}

// Level returns the last computed service level.
func (m *Manager) Level() ServiceLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// DatabaseStatus returns a copy of the per-database availability map.
func (m *Manager) DatabaseStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Start launches the availability refresh loop.
func (m *Manager) Start(ctx context.Context) {
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
				m.RefreshStatus(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the refresh loop and waits for it to exit.
func (m *Manager) Stop() {
	m.stopped.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}
