// Package process supervises a fixed set of child processes.
//
// The package offers three levels of abstraction:
//
// Handle wraps os/exec for a single OS process:
//   - Own process group, killed with the supervisor on Linux
//   - Stop signal to the group, then SIGKILL after the grace period
//   - Output appended to log files or forwarded to the logger line by line
//
// Supervised runs the state machine of one process:
//   - States stopped, starting, running, stopping, backoff and failed
//   - Exponential backoff from Policy, reset after a stable run
//   - Requests applied in arrival order by a single goroutine
//
// Supervisor owns the ordered registry:
//   - StartAll in declared order, StopAll concurrently in reverse order
//   - Start/Stop/Restart/Status by name
//   - State change callback for events and metrics
//
// Example usage:
//
//	sup, err := process.NewSupervisor(specs, &process.Options{
//	    OnStateChange: func(name string, old, new process.State, info process.Info) {
//	        log.Printf("Process %s: %s -> %s", name, old, new)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	sup.StartAll(ctx)
//	defer sup.Shutdown(context.Background())
package process
