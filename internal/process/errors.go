package process

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProcess is returned when a request names a process that is not configured.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrAlreadyRunning is returned by Start when the process is starting or running.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrNotRunning is returned by Stop when the process is already stopped.
	ErrNotRunning = errors.New("process not running")

	// ErrSupervisorStopping is returned for requests that arrive during or after shutdown.
	ErrSupervisorStopping = errors.New("supervisor is stopping")

	// ErrDuplicateName is returned when two specs share a name.
	ErrDuplicateName = errors.New("duplicate process name")
)

// SpawnError reports that the OS refused to create a process.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
