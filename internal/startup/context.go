// internal/startup/context.go
package startup

import "context"

// DatabaseProbe is the database capability the checks consume.
type DatabaseProbe interface {
	Ping(ctx context.Context) error
	TableExists(ctx context.Context, table string) (bool, error)
}

// Bootstrapper seeds the default assistant record on first boot.
type Bootstrapper interface {
	EnsureDefaultAssistant(ctx context.Context) error
}

// ServiceProbe is the minimal surface for optional auxiliary services.
type ServiceProbe interface {
	Ping(ctx context.Context) error
}

// LLMRegistry resolves configured model providers to usable clients. A
// nil client with a nil error means the provider is optional and
// absent.
type LLMRegistry interface {
	GetLLM(ctx context.Context, name string) (any, error)
}

// Context carries the host application's optional capabilities into the
// checker. Every dependency and its optionality is visible here; a nil
// field means the host did not wire that capability.
type Context struct {
	DB         DatabaseProbe
	Bootstrap  Bootstrapper
	Redis      ServiceProbe
	ClickHouse ServiceProbe
	LLM        LLMRegistry
	MockMode   bool
}
