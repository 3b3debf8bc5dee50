package events

import (
	"time"

	"github.com/smazurov/svisor/internal/logging"
	"github.com/smazurov/svisor/internal/process"
)

// ProcessStateCallback returns a process.StateChangeCallback that publishes
// every transition, plus a crash event for exits nobody asked for.
func (b *Bus) ProcessStateCallback() process.StateChangeCallback {
	return func(name string, oldState, newState process.State, info process.Info) {
		now := time.Now().Format(time.RFC3339)

		ev := ProcessStateChangedEvent{
			Name:                name,
			OldState:            string(oldState),
			NewState:            string(newState),
			PID:                 info.PID,
			ConsecutiveFailures: info.ConsecutiveFailures,
			RestartCount:        info.RestartCount,
			LastExitCode:        info.LastExitCode,
			Timestamp:           now,
		}
		if !info.NextRestartAt.IsZero() {
			ev.NextRestartAt = info.NextRestartAt.Format(time.RFC3339)
		}
		if info.LastError != nil {
			ev.Error = info.LastError.Error()
		}
		b.Publish(ev)

		if oldState == process.StateRunning && (newState == process.StateBackoff || newState == process.StateFailed) {
			b.Publish(ProcessCrashedEvent{
				Name:      name,
				ExitCode:  info.LastExitCode,
				Signal:    info.LastSignal,
				GaveUp:    newState == process.StateFailed,
				Timestamp: now,
			})
		}
	}
}

// LogEntryFrom converts a buffered log entry into its event form.
func LogEntryFrom(entry logging.LogEntry) LogEntryEvent {
	return LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
