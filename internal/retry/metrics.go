// internal/retry/metrics.go
package retry

import (
	"fmt"
	"sync"
	"time"
)

// Metrics holds running counters for one operation name. Counters are
// monotonically non-decreasing until Reset. Safe for concurrent use.
type Metrics struct {
	mu                sync.Mutex
	totalAttempts     int64
	successfulRetries int64
	failedRetries     int64
	errorDistribution map[string]int64
	lastSuccess       time.Time
	lastFailure       time.Time
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	TotalAttempts     int64            `json:"total_attempts"`
	SuccessfulRetries int64            `json:"successful_retries"`
	FailedRetries     int64            `json:"failed_retries"`
	ErrorDistribution map[string]int64 `json:"error_distribution"`
	LastSuccess       time.Time        `json:"last_success"`
	LastFailure       time.Time        `json:"last_failure"`
}

func newMetrics() *Metrics {
	return &Metrics{
		errorDistribution: make(map[string]int64),
	}
}

func (m *Metrics) recordAttempt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalAttempts++
}

func (m *Metrics) recordSuccess(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successfulRetries++
	m.lastSuccess = now
}

func (m *Metrics) recordFailure(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedRetries++
	m.lastFailure = now
	m.errorDistribution[fmt.Sprintf("%T", err)]++
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalAttempts = 0
	m.successfulRetries = 0
	m.failedRetries = 0
	m.errorDistribution = make(map[string]int64)
	m.lastSuccess = time.Time{}
	m.lastFailure = time.Time{}
}

// Snapshot returns a copy safe to read without locking.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	dist := make(map[string]int64, len(m.errorDistribution))
	for k, v := range m.errorDistribution {
		dist[k] = v
	}

	return Snapshot{
		TotalAttempts:     m.totalAttempts,
		SuccessfulRetries: m.successfulRetries,
		FailedRetries:     m.failedRetries,
		ErrorDistribution: dist,
		LastSuccess:       m.lastSuccess,
		LastFailure:       m.lastFailure,
	}
}
