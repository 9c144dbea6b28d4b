// internal/retry/policy.go
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Strategy selects the backoff curve.
type Strategy int

const (
	StrategyExponential Strategy = iota
	StrategyLinear
	StrategyFixed
	StrategyFibonacci
	StrategyAdaptive
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyExponential:
		return "exponential"
	case StrategyLinear:
		return "linear"
	case StrategyFixed:
		return "fixed"
	case StrategyFibonacci:
		return "fibonacci"
	case StrategyAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

const minDelay = 100 * time.Millisecond

// classificationRule pairs an error matcher with a severity override.
type classificationRule struct {
	matches  func(error) bool
	severity Severity
}

// Policy configures retries for one named operation class. A policy is
// registered once and shared read-only across all invocations.
type Policy struct {
	maxAttempts      int
	baseDelay        time.Duration
	maxDelay         time.Duration
	backoffFactor    float64
	jitter           bool
	strategy         Strategy
	classifications  []classificationRule
	breakerThreshold int
	breakerTimeout   time.Duration
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithMaxAttempts sets the attempt bound (minimum 1).
func WithMaxAttempts(n int) PolicyOption {
	return func(p *Policy) {
		if n < 1 {
			n = 1
		}
		p.maxAttempts = n
	}
}

// WithBaseDelay sets the initial retry delay.
func WithBaseDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.baseDelay = d
	}
}

// WithMaxDelay caps the computed delay.
func WithMaxDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.maxDelay = d
	}
}

// WithBackoffFactor sets the exponential multiplier.
func WithBackoffFactor(f float64) PolicyOption {
	return func(p *Policy) {
		p.backoffFactor = f
	}
}

// WithJitter enables jitter to prevent thundering herd.
func WithJitter(enabled bool) PolicyOption {
	return func(p *Policy) {
		p.jitter = enabled
	}
}

// WithStrategy selects the backoff strategy.
func WithStrategy(s Strategy) PolicyOption {
	return func(p *Policy) {
		p.strategy = s
	}
}

// WithClassification adds a per-policy severity override. Rules are
// checked in registration order before the default tables.
func WithClassification(matches func(error) bool, severity Severity) PolicyOption {
	return func(p *Policy) {
		p.classifications = append(p.classifications, classificationRule{
			matches:  matches,
			severity: severity,
		})
	}
}

// WithCircuitBreaker enables a breaker for the operation: it opens after
// threshold consecutive failures and stays open for timeout.
func WithCircuitBreaker(threshold int, timeout time.Duration) PolicyOption {
	return func(p *Policy) {
		p.breakerThreshold = threshold
		p.breakerTimeout = timeout
	}
}

// NewPolicy creates a policy. Defaults: 3 attempts, 1s base delay, 30s
// max delay, factor 2.0, exponential, jitter on, no breaker.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		maxAttempts:   3,
		baseDelay:     time.Second,
		maxDelay:      30 * time.Second,
		backoffFactor: 2.0,
		jitter:        true,
		strategy:      StrategyExponential,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}

	return p
}

// MaxAttempts returns the attempt bound.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }

// delay computes the sleep before the next attempt. Order: severity
// scaling, strategy curve, clamp to maxDelay, jitter, floor at 100ms.
func (p *Policy) delay(attempt int, severity Severity, stats Snapshot, now time.Time) time.Duration {
	base := float64(p.baseDelay) * severity.delayMultiplier()

	var d float64
	switch p.strategy {
	case StrategyLinear:
		d = base * float64(1+attempt)
	case StrategyFixed:
		d = base
	case StrategyFibonacci:
		d = base * float64(fibonacci(attempt+1))
	case StrategyAdaptive:
		d = base * math.Pow(p.backoffFactor, float64(attempt))
		d *= adaptiveScale(stats, now)
	default:
		d = base * math.Pow(p.backoffFactor, float64(attempt))
	}

	if d > float64(p.maxDelay) {
		d = float64(p.maxDelay)
	}

	if p.jitter {
		d += d * (rand.Float64()*0.2 - 0.1)
	}

	if d < float64(minDelay) {
		d = float64(minDelay)
	}

	return time.Duration(d)
}

// adaptiveScale adjusts the delay from recent retry outcomes: back off
// harder when failures dominate or successes have gone stale, relax when
// the operation is mostly healthy.
func adaptiveScale(stats Snapshot, now time.Time) float64 {
	scale := 1.0

	total := stats.SuccessfulRetries + stats.FailedRetries
	if total > 0 {
		rate := float64(stats.FailedRetries) / float64(total)
		if rate > 0.5 {
			scale *= 2.0
		} else if rate < 0.1 {
			scale *= 0.7
		}
	}

	if !stats.LastSuccess.IsZero() && now.Sub(stats.LastSuccess) > 5*time.Minute {
		scale *= 1.5
	}

	return scale
}

// fibonacci computes fib(n) iteratively with fib(1) = fib(2) = 1.
func fibonacci(n int) int64 {
	if n <= 2 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 3; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}
