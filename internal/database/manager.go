// internal/database/manager.go
package database

import "context"

// ConnectionInfo is a point-in-time snapshot of a manager's pool.
type ConnectionInfo struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Idle   int `json:"idle"`
	Failed int `json:"failed"`
}

// Manager is one named database connection manager. Implementations are
// registered once at boot with the degradation manager and the health
// monitor and are safe for concurrent use afterwards.
type Manager interface {
	Name() string
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	IsAvailable(ctx context.Context) bool
	ConnectionInfo(ctx context.Context) (ConnectionInfo, error)
	Close() error
}
