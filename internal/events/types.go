package events

// Event type constants for kelindar/event.
const (
	TypeProcessStateChanged uint32 = iota + 1
	TypeProcessCrashed
	TypeSupervisorLifecycle
	TypeLogEntry
	TypeProcessMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessStateChangedEvent is published on every supervised process transition.
type ProcessStateChangedEvent struct {
	Name                string `json:"name" example:"web" doc:"Process name"`
	OldState            string `json:"old_state" example:"running" doc:"Previous state"`
	NewState            string `json:"new_state" example:"backoff" doc:"New state"`
	PID                 int    `json:"pid,omitempty" example:"4242" doc:"OS process id while running"`
	ConsecutiveFailures int    `json:"consecutive_failures" example:"1" doc:"Consecutive unexpected exits"`
	RestartCount        int    `json:"restart_count" example:"3" doc:"Total automatic restarts"`
	LastExitCode        int    `json:"last_exit_code" example:"1" doc:"Exit code of the last run"`
	NextRestartAt       string `json:"next_restart_at,omitempty" example:"2025-01-27T10:30:01Z" doc:"Scheduled restart time while backing off"`
	Error               string `json:"error,omitempty" doc:"Last spawn error"`
	Timestamp           string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for ProcessStateChangedEvent.
func (e ProcessStateChangedEvent) Type() uint32 { return TypeProcessStateChanged }

// ProcessCrashedEvent is published when a process exits without being asked to.
type ProcessCrashedEvent struct {
	Name      string `json:"name" example:"web" doc:"Process name"`
	ExitCode  int    `json:"exit_code" example:"1" doc:"Exit code"`
	Signal    string `json:"signal,omitempty" example:"SIGSEGV" doc:"Terminating signal"`
	GaveUp    bool   `json:"gave_up" doc:"True when the restart policy gave up"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Exit timestamp"`
}

// Type returns the event type identifier for ProcessCrashedEvent.
func (e ProcessCrashedEvent) Type() uint32 { return TypeProcessCrashed }

// SupervisorLifecycleEvent marks supervisor-wide phases: started, stopping, reloaded.
type SupervisorLifecycleEvent struct {
	Phase     string `json:"phase" example:"started" doc:"Lifecycle phase"`
	Processes int    `json:"processes" example:"3" doc:"Number of configured processes"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SupervisorLifecycleEvent.
func (e SupervisorLifecycleEvent) Type() uint32 { return TypeSupervisorLifecycle }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// ProcessMetricsEvent carries a periodic metrics snapshot of one process.
type ProcessMetricsEvent struct {
	EventType           string `json:"type" example:"process_metrics" doc:"Event type"`
	Name                string `json:"name" example:"web" doc:"Process name"`
	State               string `json:"state" example:"running" doc:"Current state"`
	UptimeSeconds       string `json:"uptime_seconds" example:"3600" doc:"Seconds since the current run started"`
	Restarts            string `json:"restarts" example:"2" doc:"Total automatic restarts"`
	ConsecutiveFailures string `json:"consecutive_failures" example:"0" doc:"Consecutive unexpected exits"`
}

// Type returns the event type identifier for ProcessMetricsEvent.
func (e ProcessMetricsEvent) Type() uint32 { return TypeProcessMetrics }
