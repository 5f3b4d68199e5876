package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoActiveSession indicates a lifecycle call before Begin or after End.
var ErrNoActiveSession = errors.New("no active session")

// AlreadyOpenError indicates an unclosed checkpoint already exists.
// Callers must resolve it through the preflight inspector before beginning
// a new session; Begin never silently overwrites in-flight state.
type AlreadyOpenError struct {
	PlanID string
}

// Error implements the error interface.
func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("checkpoint for plan %q is open; resolve via preflight before beginning", e.PlanID)
}

// UnconfirmedKeysError indicates dirty keys whose document saves have not
// been confirmed durable since they were marked.
type UnconfirmedKeysError struct {
	Keys []string
}

// Error implements the error interface.
func (e *UnconfirmedKeysError) Error() string {
	return fmt.Sprintf("dirty keys lack confirmed saves: %s", strings.Join(e.Keys, ", "))
}
