// internal/retry/policy_test.go
package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDelay(t *testing.T) {
	now := time.Now()

	t.Run("exponential delay grows and is capped", func(t *testing.T) {
		p := NewPolicy(
			WithBaseDelay(time.Second),
			WithMaxDelay(10*time.Second),
			WithBackoffFactor(2.0),
			WithJitter(false),
		)

		prev := time.Duration(0)
		for attempt := 0; attempt < 3; attempt++ {
			d := p.delay(attempt, SeverityDegraded, Snapshot{}, now)
			assert.Greater(t, d, prev, "attempt %d", attempt)
			prev = d
		}

		// Far attempts hit the cap
		assert.Equal(t, 10*time.Second, p.delay(10, SeverityDegraded, Snapshot{}, now))
	})

	t.Run("severity scales the base", func(t *testing.T) {
		p := NewPolicy(
			WithBaseDelay(2*time.Second),
			WithStrategy(StrategyFixed),
			WithJitter(false),
		)

		assert.Equal(t, time.Second, p.delay(0, SeverityTransient, Snapshot{}, now))
		assert.Equal(t, 2*time.Second, p.delay(0, SeverityDegraded, Snapshot{}, now))
		assert.Equal(t, 4*time.Second, p.delay(0, SeverityPersistent, Snapshot{}, now))
	})

	t.Run("linear strategy", func(t *testing.T) {
		p := NewPolicy(
			WithBaseDelay(time.Second),
			WithStrategy(StrategyLinear),
			WithJitter(false),
		)

		assert.Equal(t, time.Second, p.delay(0, SeverityDegraded, Snapshot{}, now))
		assert.Equal(t, 2*time.Second, p.delay(1, SeverityDegraded, Snapshot{}, now))
		assert.Equal(t, 3*time.Second, p.delay(2, SeverityDegraded, Snapshot{}, now))
	})

	t.Run("fibonacci strategy", func(t *testing.T) {
		p := NewPolicy(
			WithBaseDelay(time.Second),
			WithMaxDelay(time.Minute),
			WithStrategy(StrategyFibonacci),
			WithJitter(false),
		)

		// fib(1..5) = 1 1 2 3 5
		want := []time.Duration{
			time.Second, time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second,
		}
		for attempt, w := range want {
			assert.Equal(t, w, p.delay(attempt, SeverityDegraded, Snapshot{}, now))
		}
	})

	t.Run("adaptive scales up on high failure rate", func(t *testing.T) {
		p := NewPolicy(
			WithBaseDelay(time.Second),
			WithMaxDelay(time.Minute),
			WithStrategy(StrategyAdaptive),
			WithJitter(false),
		)

		healthy := Snapshot{SuccessfulRetries: 99, FailedRetries: 1, LastSuccess: now}
		failing := Snapshot{SuccessfulRetries: 1, FailedRetries: 9, LastSuccess: now}

		assert.Greater(t,
			p.delay(1, SeverityDegraded, failing, now),
			p.delay(1, SeverityDegraded, healthy, now))
	})

	t.Run("adaptive scales up when success is stale", func(t *testing.T) {
		p := NewPolicy(
			WithBaseDelay(time.Second),
			WithMaxDelay(time.Minute),
			WithStrategy(StrategyAdaptive),
			WithJitter(false),
		)

		fresh := Snapshot{LastSuccess: now.Add(-time.Minute)}
		stale := Snapshot{LastSuccess: now.Add(-10 * time.Minute)}

		assert.Greater(t,
			p.delay(1, SeverityDegraded, stale, now),
			p.delay(1, SeverityDegraded, fresh, now))
	})

	t.Run("jitter stays within ten percent of the clamped delay", func(t *testing.T) {
		fixed := NewPolicy(
			WithBaseDelay(time.Second),
			WithStrategy(StrategyFixed),
		)
		capped := NewPolicy(
			WithBaseDelay(time.Second),
			WithMaxDelay(2*time.Second),
			WithBackoffFactor(2.0),
		)

		for i := 0; i < 500; i++ {
			d := fixed.delay(0, SeverityDegraded, Snapshot{}, now)
			assert.GreaterOrEqual(t, d, 900*time.Millisecond)
			assert.LessOrEqual(t, d, 1100*time.Millisecond)

			// Jitter applies after the cap, so a capped delay may
			// land above MaxDelay by up to 10%.
			d = capped.delay(10, SeverityDegraded, Snapshot{}, now)
			assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
			assert.LessOrEqual(t, d, 2200*time.Millisecond)
		}
	})

	t.Run("delay never drops below the floor", func(t *testing.T) {
		p := NewPolicy(
			WithBaseDelay(time.Millisecond),
			WithStrategy(StrategyFixed),
			WithJitter(false),
		)

		assert.Equal(t, 100*time.Millisecond, p.delay(0, SeverityTransient, Snapshot{}, now))
	})

	t.Run("max delay at least base delay", func(t *testing.T) {
		p := NewPolicy(
			WithBaseDelay(10*time.Second),
			WithMaxDelay(time.Second),
		)
		assert.Equal(t, 10*time.Second, p.maxDelay)
	})
}

func TestFibonacci(t *testing.T) {
	want := []int64{1, 1, 2, 3, 5, 8, 13, 21, 34, 55}
	for i, w := range want {
		assert.Equal(t, w, fibonacci(i+1))
	}
}
