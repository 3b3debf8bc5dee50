// Package control is the command surface of the supervisor. Controller runs
// status, start, stop, restart and stop-all against a live supervisor and
// reports a Result that both the HTTP API and the CLI client understand.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/svisor/internal/logging"
	"github.com/smazurov/svisor/internal/process"
)

// Action names a control operation.
type Action string

const (
	ActionStatus  Action = "status"
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionStopAll Action = "stop-all"
)

// Code classifies the outcome of a command.
type Code string

const (
	CodeOK             Code = "ok"
	CodeUnknownProcess Code = "unknown_process"
	CodeAlreadyRunning Code = "already_running"
	CodeNotRunning     Code = "not_running"
	CodeSpawnError     Code = "spawn_error"
	CodeInvalidCommand Code = "invalid_command"
	CodeUnavailable    Code = "unavailable"
	CodeInternal       Code = "internal"
)

// Command is a single control request.
type Command struct {
	Action Action `json:"action"`
	Name   string `json:"name,omitempty"`
}

// ProcessStatus is the wire form of a process snapshot.
type ProcessStatus struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	PID                 int        `json:"pid,omitempty"`
	Uptime              string     `json:"uptime"`
	UptimeSeconds       int64      `json:"uptime_seconds"`
	Restarts            int        `json:"restarts"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastExitCode        int        `json:"last_exit_code"`
	LastSignal          string     `json:"last_signal,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	NextRestartAt       *time.Time `json:"next_restart_at,omitempty"`
}

// Result is returned for every command.
type Result struct {
	OK        bool            `json:"ok"`
	Code      Code            `json:"code"`
	Message   string          `json:"message"`
	Processes []ProcessStatus `json:"processes,omitempty"`
}

// Supervisor is the part of *process.Supervisor the controller drives.
type Supervisor interface {
	Names() []string
	Info(name string) (process.Info, error)
	Status() []process.Info
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	StopAll(ctx context.Context) error
}

// Controller executes commands against the current supervisor. The
// supervisor can be swapped when the configuration is reloaded.
type Controller struct {
	mu     sync.RWMutex
	sup    Supervisor
	logger *slog.Logger
}

// NewController creates a controller for sup.
func NewController(sup Supervisor) *Controller {
	return &Controller{
		sup:    sup,
		logger: logging.GetLogger("control"),
	}
}

// Replace swaps the supervisor that commands run against.
func (c *Controller) Replace(sup Supervisor) {
	c.mu.Lock()
	c.sup = sup
	c.mu.Unlock()
}

// Snapshot returns the status of every process of the current supervisor.
func (c *Controller) Snapshot() []process.Info {
	sup := c.current()
	if sup == nil {
		return nil
	}
	return sup.Status()
}

// Names returns the current supervisor's process names in declared order.
func (c *Controller) Names() []string {
	sup := c.current()
	if sup == nil {
		return nil
	}
	return sup.Names()
}

func (c *Controller) current() Supervisor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sup
}

// Execute runs cmd and never returns a Go error: failures are carried in the Result.
func (c *Controller) Execute(ctx context.Context, cmd Command) Result {
	sup := c.current()
	if sup == nil {
		return Result{Code: CodeUnavailable, Message: "supervisor is not running"}
	}

	switch cmd.Action {
	case ActionStatus:
		return c.status(sup, cmd.Name)
	case ActionStopAll:
		if err := sup.StopAll(ctx); err != nil {
			return failure(err, "stop-all")
		}
		c.logger.Info("Stopped all processes")
		return c.withStatus(sup, Result{OK: true, Code: CodeOK, Message: "all processes stopped"})
	case ActionStart, ActionStop, ActionRestart:
		if cmd.Name == "" {
			return Result{Code: CodeInvalidCommand, Message: fmt.Sprintf("%s requires a process name", cmd.Action)}
		}
		if cmd.Name == process.AllTarget {
			return c.fanOut(ctx, sup, cmd.Action)
		}
		return c.single(ctx, sup, cmd.Action, cmd.Name)
	default:
		return Result{Code: CodeInvalidCommand, Message: fmt.Sprintf("unknown action %q", cmd.Action)}
	}
}

// Status reports every process, or one process when name is set.
func (c *Controller) Status(ctx context.Context, name string) Result {
	return c.Execute(ctx, Command{Action: ActionStatus, Name: name})
}

// Start starts name, or every process for "all".
func (c *Controller) Start(ctx context.Context, name string) Result {
	return c.Execute(ctx, Command{Action: ActionStart, Name: name})
}

// Stop stops name, or every process for "all".
func (c *Controller) Stop(ctx context.Context, name string) Result {
	return c.Execute(ctx, Command{Action: ActionStop, Name: name})
}

// Restart restarts name, or every process for "all".
func (c *Controller) Restart(ctx context.Context, name string) Result {
	return c.Execute(ctx, Command{Action: ActionRestart, Name: name})
}

// StopAll stops every process.
func (c *Controller) StopAll(ctx context.Context) Result {
	return c.Execute(ctx, Command{Action: ActionStopAll})
}

func (c *Controller) status(sup Supervisor, name string) Result {
	if name == "" || name == process.AllTarget {
		now := time.Now()
		infos := sup.Status()
		statuses := make([]ProcessStatus, 0, len(infos))
		for _, info := range infos {
			statuses = append(statuses, NewProcessStatus(info, now))
		}
		return Result{OK: true, Code: CodeOK, Message: fmt.Sprintf("%d processes", len(statuses)), Processes: statuses}
	}

	info, err := sup.Info(name)
	if err != nil {
		return failure(err, name)
	}
	return Result{OK: true, Code: CodeOK, Message: string(info.State), Processes: []ProcessStatus{NewProcessStatus(info, time.Now())}}
}

func (c *Controller) single(ctx context.Context, sup Supervisor, action Action, name string) Result {
	if err := run(ctx, sup, action, name); err != nil {
		c.logger.Warn("Control command failed", "action", action, "name", name, "error", err)
		res := failure(err, name)
		if info, infoErr := sup.Info(name); infoErr == nil {
			res.Processes = []ProcessStatus{NewProcessStatus(info, time.Now())}
		}
		return res
	}

	c.logger.Info("Control command completed", "action", action, "name", name)
	info, _ := sup.Info(name)
	return Result{
		OK:        true,
		Code:      CodeOK,
		Message:   fmt.Sprintf("%s: %s", name, pastTense(action)),
		Processes: []ProcessStatus{NewProcessStatus(info, time.Now())},
	}
}

// fanOut applies action to every process in declared order. Processes that
// are already in the requested state do not fail the command.
func (c *Controller) fanOut(ctx context.Context, sup Supervisor, action Action) Result {
	var errs []error
	var code Code
	for _, name := range sup.Names() {
		err := run(ctx, sup, action, name)
		switch {
		case err == nil:
		case action == ActionStart && errors.Is(err, process.ErrAlreadyRunning):
		case action == ActionStop && errors.Is(err, process.ErrNotRunning):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if code == "" {
				code = CodeFor(err)
			}
		}
	}

	c.logger.Info("Control command completed", "action", action, "name", process.AllTarget, "failures", len(errs))
	res := Result{OK: true, Code: CodeOK, Message: fmt.Sprintf("all: %s", pastTense(action))}
	if err := errors.Join(errs...); err != nil {
		res = Result{Code: code, Message: err.Error()}
	}
	return c.withStatus(sup, res)
}

func (c *Controller) withStatus(sup Supervisor, res Result) Result {
	now := time.Now()
	for _, info := range sup.Status() {
		res.Processes = append(res.Processes, NewProcessStatus(info, now))
	}
	return res
}

func run(ctx context.Context, sup Supervisor, action Action, name string) error {
	switch action {
	case ActionStart:
		return sup.Start(ctx, name)
	case ActionStop:
		return sup.Stop(ctx, name)
	case ActionRestart:
		return sup.Restart(ctx, name)
	}
	return fmt.Errorf("unsupported action %q", action)
}

func failure(err error, name string) Result {
	code := CodeFor(err)
	msg := err.Error()
	if code == CodeUnknownProcess {
		msg = fmt.Sprintf("process %q not found", name)
	}
	return Result{Code: code, Message: msg}
}

// CodeFor maps a supervisor error to a result code.
func CodeFor(err error) Code {
	var spawnErr *process.SpawnError
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, process.ErrUnknownProcess):
		return CodeUnknownProcess
	case errors.Is(err, process.ErrAlreadyRunning):
		return CodeAlreadyRunning
	case errors.Is(err, process.ErrNotRunning):
		return CodeNotRunning
	case errors.As(err, &spawnErr):
		return CodeSpawnError
	case errors.Is(err, process.ErrSupervisorStopping):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

func pastTense(a Action) string {
	switch a {
	case ActionStart:
		return "started"
	case ActionStop:
		return "stopped"
	case ActionRestart:
		return "restarted"
	}
	return string(a)
}

// NewProcessStatus converts a snapshot into its wire form.
func NewProcessStatus(info process.Info, now time.Time) ProcessStatus {
	ps := ProcessStatus{
		Name:                info.Name,
		State:               string(info.State),
		PID:                 info.PID,
		Uptime:              FormatUptime(info.Uptime),
		UptimeSeconds:       int64(info.Uptime / time.Second),
		Restarts:            info.RestartCount,
		ConsecutiveFailures: info.ConsecutiveFailures,
		LastExitCode:        info.LastExitCode,
		LastSignal:          info.LastSignal,
	}
	if info.LastError != nil {
		ps.LastError = info.LastError.Error()
	}
	if !info.StartedAt.IsZero() && info.Running() {
		t := info.StartedAt
		ps.StartedAt = &t
	}
	if !info.NextRestartAt.IsZero() && info.NextRestartAt.After(now) {
		t := info.NextRestartAt
		ps.NextRestartAt = &t
	}
	return ps
}
