// internal/retry/circuit_breaker.go
package retry

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Normal operation
	BreakerOpen                         // Failing, calls rejected
	BreakerHalfOpen                     // Testing recovery
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards one operation name. It opens after a run of
// consecutive failures and rejects calls until the reset timeout passes,
// then admits a probe call in half-open state.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration

	state        BreakerState
	failures     int
	lastFailTime time.Time

	operation string
	logger    *zap.Logger
}

// NewCircuitBreaker creates a breaker for one operation.
func NewCircuitBreaker(operation string, threshold int, resetTimeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
		state:            BreakerClosed,
		operation:        operation,
		logger:           logger,
	}
}

// Allow reports whether a call may proceed. While open it returns
// ErrCircuitOpen until the reset timeout elapses, at which point the
// breaker transitions to half-open and admits the call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if time.Since(cb.lastFailTime) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.state = BreakerHalfOpen
		cb.logger.Info("circuit breaker half-open",
			zap.String("operation", cb.operation))
	}

	return nil
}

// Record updates breaker state with the outcome of a call.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()

		if cb.state == BreakerHalfOpen || cb.failures >= cb.failureThreshold {
			if cb.state != BreakerOpen {
				cb.logger.Error("circuit breaker opened",
					zap.String("operation", cb.operation),
					zap.Int("failures", cb.failures),
					zap.Error(err))
			}
			cb.state = BreakerOpen
		}
		return
	}

	cb.failures = 0
	if cb.state == BreakerHalfOpen {
		cb.state = BreakerClosed
		cb.logger.Info("circuit breaker closed",
			zap.String("operation", cb.operation))
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.failures = 0
}
