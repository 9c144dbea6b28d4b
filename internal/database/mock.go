// internal/database/mock.go
package database

import (
	"context"
	"sync"
)

// Mock is an in-memory Manager used when the analytics store is
// unreachable and in mock-mode environments. All probes succeed unless
// SetAvailable flips the switch.
type Mock struct {
	name string

	mu        sync.Mutex
	available bool
	info      ConnectionInfo
	connected bool
}

// NewMock creates a mock manager for the given database name.
func NewMock(name string) *Mock {
	return &Mock{
		name:      name,
		available: true,
		info:      ConnectionInfo{Total: 1, Idle: 1},
	}
}

// SetAvailable controls probe results.
func (m *Mock) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// SetConnectionInfo overrides the reported pool snapshot.
func (m *Mock) SetConnectionInfo(info ConnectionInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = info
}

// Name implements Manager.
func (m *Mock) Name() string { return m.name }

// Connect implements Manager.
func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Ping implements Manager.
func (m *Mock) Ping(ctx context.Context) error {
	if !m.IsAvailable(ctx) {
		return errUnavailable(m.name)
	}
	return nil
}

// IsAvailable implements Manager.
func (m *Mock) IsAvailable(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// ConnectionInfo implements Manager.
func (m *Mock) ConnectionInfo(ctx context.Context) (ConnectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info, nil
}

// Close implements Manager.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}
