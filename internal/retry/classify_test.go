// internal/retry/classify_test.go
package retry

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier(t *testing.T) {
	c := NewClassifier()

	t.Run("policy rules win over defaults", func(t *testing.T) {
		marker := errors.New("special")
		policy := NewPolicy(
			WithClassification(func(err error) bool {
				return errors.Is(err, marker)
			}, SeverityFatal),
		)

		assert.Equal(t, SeverityFatal, c.Classify(marker, policy))
	})

	t.Run("connection errors are transient", func(t *testing.T) {
		assert.Equal(t, SeverityTransient, c.Classify(syscall.ECONNREFUSED, nil))
		assert.Equal(t, SeverityTransient, c.Classify(syscall.ECONNRESET, nil))
		assert.Equal(t, SeverityTransient, c.Classify(
			&net.OpError{Op: "dial", Err: errors.New("refused")}, nil))
	})

	t.Run("message substrings", func(t *testing.T) {
		cases := []struct {
			err  error
			want Severity
		}{
			{errors.New("query Timeout exceeded"), SeverityTransient},
			{errors.New("connection reset by peer"), SeverityTransient},
			{errors.New("Network unreachable"), SeverityTransient},
			{errors.New("temporary failure in name resolution"), SeverityTransient},
			{errors.New("authentication failed for user"), SeverityFatal},
			{errors.New("permission denied"), SeverityFatal},
			{errors.New("invalid input syntax"), SeverityFatal},
			{errors.New("relation not found"), SeverityFatal},
		}
		for _, tc := range cases {
			assert.Equal(t, tc.want, c.Classify(tc.err, nil), tc.err.Error())
		}
	})

	t.Run("unknown errors are degraded", func(t *testing.T) {
		assert.Equal(t, SeverityDegraded, c.Classify(errors.New("something odd"), nil))
	})

	t.Run("classification is deterministic", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", errors.New("connection reset"))
		first := c.Classify(err, nil)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, c.Classify(err, nil))
		}
	})
}
