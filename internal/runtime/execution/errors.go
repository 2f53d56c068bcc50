package execution

import (
	"fmt"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
)

// SpawnError is returned when an executor refuses new work.
type SpawnError struct {
	ExecutorID ExecutorID
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning task on executor %s failed: %v", e.ExecutorID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsShutdown reports whether spawning failed because the executor is shut down.
func (e *SpawnError) IsShutdown() bool {
	return e.Err == errspkg.ErrExecutorShutdown
}

// ExecutorAlreadyRegisteredError is returned when registering an id twice.
type ExecutorAlreadyRegisteredError struct {
	ID ExecutorID
}

func (e *ExecutorAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("executor is already registered: %s", e.ID)
}
