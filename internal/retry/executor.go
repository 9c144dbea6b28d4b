// internal/retry/executor.go
package retry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Operation is a unit of resilient work.
type Operation func(ctx context.Context) (any, error)

// Executor runs operations with classification-aware retries and
// per-operation circuit breaking. All resilient database I/O goes
// through one Executor instance.
type Executor struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	breakers map[string]*CircuitBreaker
	metrics  map[string]*Metrics

	defaultPolicy *Policy
	classifier    *Classifier
	logger        *zap.Logger

	// sleep is swappable so tests can observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithDefaultPolicy replaces the fallback policy used for unregistered
// operation names.
func WithDefaultPolicy(p *Policy) ExecutorOption {
	return func(e *Executor) {
		e.defaultPolicy = p
	}
}

// NewExecutor creates an executor. The default policy retries 3 times
// with exponential backoff from 1s, capped at 30s, with jitter.
func NewExecutor(logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		policies:      make(map[string]*Policy),
		breakers:      make(map[string]*CircuitBreaker),
		metrics:       make(map[string]*Metrics),
		defaultPolicy: NewPolicy(),
		classifier:    NewClassifier(),
		logger:        logger,
		sleep:         sleepContext,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterPolicy binds a policy to an operation name. A breaker is
// created when the policy enables one. Metrics are created lazily here
// so callers can read them before the first execution.
func (e *Executor) RegisterPolicy(name string, p *Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies[name] = p
	if _, ok := e.metrics[name]; !ok {
		e.metrics[name] = newMetrics()
	}
	if p.breakerThreshold > 0 {
		e.breakers[name] = NewCircuitBreaker(name, p.breakerThreshold, p.breakerTimeout, e.logger)
	}
}

// Policy returns the policy for name, or the default.
func (e *Executor) Policy(name string) *Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.policies[name]; ok {
		return p
	}
	return e.defaultPolicy
}

// Metrics returns a snapshot of the counters for name.
func (e *Executor) Metrics(name string) Snapshot {
	return e.metricsFor(name).Snapshot()
}

// ResetMetrics zeroes the counters for name.
func (e *Executor) ResetMetrics(name string) {
	e.metricsFor(name).Reset()
}

// Breaker returns the circuit breaker for name, if one is registered.
func (e *Executor) Breaker(name string) *CircuitBreaker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.breakers[name]
}

func (e *Executor) metricsFor(name string) *Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.metrics[name]
	if !ok {
		m = newMetrics()
		e.metrics[name] = m
	}
	return m
}

// Execute runs op under the policy registered for name. Attempts are
// strictly sequential. Fatal-classified errors are re-raised on the
// first occurrence; otherwise the last error is returned unchanged
// after the attempt bound is exhausted.
func (e *Executor) Execute(ctx context.Context, name string, op Operation) (any, error) {
	policy := e.Policy(name)
	metrics := e.metricsFor(name)
	breaker := e.Breaker(name)

	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			return nil, err
		}
	}

	var lastErr error

	for attempt := 0; attempt < policy.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		metrics.recordAttempt()

		result, err := op(ctx)
		if err == nil {
			metrics.recordSuccess(e.now())
			if breaker != nil {
				breaker.Record(nil)
			}
			if attempt > 0 {
				e.logger.Debug("operation succeeded after retry",
					zap.String("operation", name),
					zap.Int("attempt", attempt+1))
			}
			return result, nil
		}

		lastErr = err
		metrics.recordFailure(err, e.now())

		severity := e.classifier.Classify(err, policy)
		if severity == SeverityFatal {
			if breaker != nil {
				breaker.Record(err)
			}
			e.logger.Error("fatal error, not retrying",
				zap.String("operation", name),
				zap.Error(err))
			return nil, err
		}

		if attempt == policy.maxAttempts-1 {
			break
		}

		delay := policy.delay(attempt, severity, metrics.Snapshot(), e.now())
		e.logger.Debug("operation failed, retrying",
			zap.String("operation", name),
			zap.String("severity", severity.String()),
			zap.Int("attempt", attempt+1),
			zap.Int("maxAttempts", policy.maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if breaker != nil {
		breaker.Record(lastErr)
	}
	e.logger.Error("operation failed after all retries",
		zap.String("operation", name),
		zap.Int("attempts", policy.maxAttempts),
		zap.Error(lastErr))

	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
