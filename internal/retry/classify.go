// internal/retry/classify.go
package retry

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

// Severity categorizes an error for retry decisions.
type Severity int

const (
	SeverityTransient  Severity = iota // Retry quickly, likely to recover
	SeverityDegraded                   // Retry with normal backoff
	SeverityPersistent                 // Retry slowly, probably structural
	SeverityFatal                      // Never retry
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityTransient:
		return "transient"
	case SeverityDegraded:
		return "degraded"
	case SeverityPersistent:
		return "persistent"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// delayMultiplier scales the base delay per severity.
func (s Severity) delayMultiplier() float64 {
	switch s {
	case SeverityTransient:
		return 0.5
	case SeverityPersistent:
		return 2.0
	default:
		return 1.0
	}
}

var transientSubstrings = []string{
	"timeout",
	"connection reset",
	"network",
	"temporary",
}

var fatalSubstrings = []string{
	"authentication",
	"permission",
	"invalid",
	"not found",
}

// Classifier maps errors to severities. Classification is ordered:
// policy-specific rules first, then the default driver/OS error table,
// then message substrings, then SeverityDegraded.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the severity for err under the given policy. It is a
// pure function of the error type, its message and the policy rules.
func (c *Classifier) Classify(err error, policy *Policy) Severity {
	if err == nil {
		return SeverityTransient
	}

	if policy != nil {
		for _, rule := range policy.classifications {
			if rule.matches(err) {
				return rule.severity
			}
		}
	}

	if sev, ok := classifyDefault(err); ok {
		return sev
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return SeverityTransient
		}
	}
	for _, s := range fatalSubstrings {
		if strings.Contains(msg, s) {
			return SeverityFatal
		}
	}

	return SeverityDegraded
}

// classifyDefault covers the well-known connection, timeout and OS error
// types that every database driver can surface.
func classifyDefault(err error) (Severity, bool) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return SeverityTransient, true
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded):
		return SeverityTransient, true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return SeverityTransient, true
	}

	return 0, false
}
