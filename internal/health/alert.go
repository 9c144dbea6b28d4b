// internal/health/alert.go
package health

import (
	"time"

	"github.com/google/uuid"
)

// AlertSeverity grades a threshold violation.
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is a threshold-violation notification. An alert resolves at
// most once and is never resurrected; a fresh violation after
// resolution creates a new alert.
type Alert struct {
	ID          string        `json:"id"`
	Database    string        `json:"database"`
	Metric      string        `json:"metric"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
	Resolved    bool          `json:"resolved"`
	ResolvedAt  time.Time     `json:"resolved_at,omitempty"`
}

func newAlert(database, metric string, severity AlertSeverity, message string) *Alert {
	return &Alert{
		ID:          uuid.NewString(),
		Database:    database,
		Metric:      metric,
		Severity:    severity,
		Message:     message,
		TriggeredAt: time.Now(),
	}
}

func (a *Alert) resolve() {
	if a.Resolved {
		return
	}
	a.Resolved = true
	a.ResolvedAt = time.Now()
}
