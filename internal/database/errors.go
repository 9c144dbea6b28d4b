// internal/database/errors.go
package database

import "fmt"

type unavailableError struct {
	name string
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("database %s is unavailable", e.name)
}

func errUnavailable(name string) error {
	return &unavailableError{name: name}
}
