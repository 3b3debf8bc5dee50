package process

import "time"

// State represents the current lifecycle state of a supervised process.
type State string

// Process states.
const (
	StateStopped  State = "stopped"  // Not running, no restart scheduled
	StateStarting State = "starting" // Being spawned
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // Stop requested, waiting for exit
	StateBackoff  State = "backoff"  // Exited unexpectedly, restart scheduled
	StateFailed   State = "failed"   // Gave up restarting, needs a manual start or restart
)

// Info is a point-in-time copy of a supervised process's runtime state.
type Info struct {
	Name                string
	State               State
	PID                 int
	StartedAt           time.Time
	Uptime              time.Duration
	ConsecutiveFailures int
	RestartCount        int
	LastExitCode        int
	LastSignal          string
	LastError           error
	NextRestartAt       time.Time
	LastTransition      time.Time
}

// Running reports whether the snapshot was taken while the OS process was alive.
func (i Info) Running() bool {
	return i.State == StateRunning || i.State == StateStopping
}
