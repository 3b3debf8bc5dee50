package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/svisor/internal/logging"
	"github.com/smazurov/svisor/internal/process"
)

// fakeSupervisor records calls and returns canned errors per name.
type fakeSupervisor struct {
	mu      sync.Mutex
	names   []string
	infos   map[string]process.Info
	errs    map[string]error
	calls   []string
	stopAll error
}

func newFakeSupervisor(names ...string) *fakeSupervisor {
	f := &fakeSupervisor{
		names: names,
		infos: make(map[string]process.Info),
		errs:  make(map[string]error),
	}
	for _, n := range names {
		f.infos[n] = process.Info{Name: n, State: process.StateStopped}
	}
	return f
}

func (f *fakeSupervisor) Names() []string { return f.names }

func (f *fakeSupervisor) Info(name string) (process.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[name]
	if !ok {
		return process.Info{}, process.ErrUnknownProcess
	}
	return info, nil
}

func (f *fakeSupervisor) Status() []process.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]process.Info, 0, len(f.names))
	for _, n := range f.names {
		out = append(out, f.infos[n])
	}
	return out
}

func (f *fakeSupervisor) apply(action, name string, state process.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action+":"+name)
	if _, ok := f.infos[name]; !ok {
		return process.ErrUnknownProcess
	}
	if err := f.errs[action+":"+name]; err != nil {
		return err
	}
	info := f.infos[name]
	info.State = state
	f.infos[name] = info
	return nil
}

func (f *fakeSupervisor) Start(_ context.Context, name string) error {
	return f.apply("start", name, process.StateRunning)
}

func (f *fakeSupervisor) Stop(_ context.Context, name string) error {
	return f.apply("stop", name, process.StateStopped)
}

func (f *fakeSupervisor) Restart(_ context.Context, name string) error {
	return f.apply("restart", name, process.StateRunning)
}

func (f *fakeSupervisor) StopAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop-all")
	if f.stopAll != nil {
		return f.stopAll
	}
	for n, info := range f.infos {
		info.State = process.StateStopped
		f.infos[n] = info
	}
	return nil
}

func TestExecuteStart(t *testing.T) {
	sup := newFakeSupervisor("web", "worker")
	c := NewController(sup)

	res := c.Start(t.Context(), "web")
	if !res.OK || res.Code != CodeOK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if len(res.Processes) != 1 || res.Processes[0].State != "running" {
		t.Errorf("expected web running in result, got %+v", res.Processes)
	}
}

func TestExecuteErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"already running", process.ErrAlreadyRunning, CodeAlreadyRunning},
		{"not running", process.ErrNotRunning, CodeNotRunning},
		{"spawn", &process.SpawnError{Name: "web", Err: errors.New("exec format error")}, CodeSpawnError},
		{"stopping", process.ErrSupervisorStopping, CodeUnavailable},
		{"other", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := newFakeSupervisor("web")
			sup.errs["start:web"] = tt.err
			res := NewController(sup).Start(t.Context(), "web")
			if res.OK {
				t.Fatal("expected failure")
			}
			if res.Code != tt.want {
				t.Errorf("code = %s, want %s", res.Code, tt.want)
			}
			if len(res.Processes) != 1 {
				t.Errorf("expected current status attached, got %+v", res.Processes)
			}
		})
	}
}

func TestExecuteUnknownProcess(t *testing.T) {
	c := NewController(newFakeSupervisor("web"))

	for _, res := range []Result{
		c.Start(t.Context(), "db"),
		c.Status(t.Context(), "db"),
	} {
		if res.OK || res.Code != CodeUnknownProcess {
			t.Errorf("expected unknown_process, got %+v", res)
		}
		if !strings.Contains(res.Message, `"db" not found`) {
			t.Errorf("unexpected message %q", res.Message)
		}
	}
}

func TestExecuteInvalidCommands(t *testing.T) {
	c := NewController(newFakeSupervisor("web"))

	if res := c.Execute(t.Context(), Command{Action: "reload"}); res.Code != CodeInvalidCommand {
		t.Errorf("unknown action: got %+v", res)
	}
	if res := c.Stop(t.Context(), ""); res.Code != CodeInvalidCommand {
		t.Errorf("missing name: got %+v", res)
	}
}

func TestExecuteAllFansOutInOrder(t *testing.T) {
	sup := newFakeSupervisor("db", "web", "worker")
	sup.errs["start:web"] = process.ErrAlreadyRunning
	c := NewController(sup)

	res := c.Start(t.Context(), process.AllTarget)
	if !res.OK {
		t.Fatalf("already running must not fail start all, got %+v", res)
	}
	want := []string{"start:db", "start:web", "start:worker"}
	if strings.Join(sup.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", sup.calls, want)
	}
	if len(res.Processes) != 3 {
		t.Errorf("expected status for every process, got %d", len(res.Processes))
	}
}

func TestExecuteAllReportsFailures(t *testing.T) {
	sup := newFakeSupervisor("db", "web")
	sup.errs["restart:db"] = &process.SpawnError{Name: "db", Err: errors.New("no such file")}
	c := NewController(sup)

	res := c.Restart(t.Context(), process.AllTarget)
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Code != CodeSpawnError {
		t.Errorf("code = %s, want spawn_error", res.Code)
	}
	if !strings.Contains(res.Message, "db:") {
		t.Errorf("message should name the failing process, got %q", res.Message)
	}
	if len(sup.calls) != 2 {
		t.Errorf("expected every process attempted, got %v", sup.calls)
	}
}

func TestExecuteStatus(t *testing.T) {
	sup := newFakeSupervisor("web", "worker")
	sup.infos["web"] = process.Info{
		Name:         "web",
		State:        process.StateRunning,
		PID:          4242,
		StartedAt:    time.Now().Add(-90 * time.Second),
		Uptime:       90 * time.Second,
		RestartCount: 2,
	}
	c := NewController(sup)

	res := c.Status(t.Context(), "")
	if !res.OK || len(res.Processes) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	web := res.Processes[0]
	if web.Name != "web" || web.PID != 4242 || web.Restarts != 2 {
		t.Errorf("unexpected web status %+v", web)
	}
	if web.Uptime != "1m 30s" || web.UptimeSeconds != 90 {
		t.Errorf("unexpected uptime %q/%d", web.Uptime, web.UptimeSeconds)
	}
	if web.StartedAt == nil {
		t.Error("expected started_at for a running process")
	}
	if worker := res.Processes[1]; worker.Uptime != "N/A" || worker.StartedAt != nil {
		t.Errorf("unexpected stopped status %+v", worker)
	}
}

func TestExecuteStopAll(t *testing.T) {
	sup := newFakeSupervisor("web")
	c := NewController(sup)
	c.Start(t.Context(), "web")

	res := c.StopAll(t.Context())
	if !res.OK || res.Processes[0].State != "stopped" {
		t.Errorf("unexpected result %+v", res)
	}

	sup.stopAll = errors.New("timeout")
	if res := c.StopAll(t.Context()); res.OK || res.Code != CodeInternal {
		t.Errorf("expected internal failure, got %+v", res)
	}
}

func TestControllerReplace(t *testing.T) {
	c := NewController(nil)
	if res := c.Status(t.Context(), ""); res.Code != CodeUnavailable {
		t.Errorf("expected unavailable without a supervisor, got %+v", res)
	}
	if snap := c.Snapshot(); snap != nil {
		t.Errorf("expected nil snapshot without a supervisor, got %v", snap)
	}
	if names := c.Names(); names != nil {
		t.Errorf("expected no names without a supervisor, got %v", names)
	}

	c.Replace(newFakeSupervisor("web"))
	if res := c.Status(t.Context(), ""); !res.OK || len(res.Processes) != 1 {
		t.Errorf("unexpected result after replace %+v", res)
	}
	if snap := c.Snapshot(); len(snap) != 1 || snap[0].Name != "web" {
		t.Errorf("unexpected snapshot after replace %v", snap)
	}
	if names := c.Names(); len(names) != 1 || names[0] != "web" {
		t.Errorf("unexpected names after replace %v", names)
	}
}

func TestNewProcessStatusBackoff(t *testing.T) {
	now := time.Now()
	info := process.Info{
		Name:                "web",
		State:               process.StateBackoff,
		ConsecutiveFailures: 2,
		LastExitCode:        137,
		LastSignal:          "SIGKILL",
		LastError:           errors.New("exited with code 137"),
		NextRestartAt:       now.Add(2 * time.Second),
	}

	ps := NewProcessStatus(info, now)
	if ps.NextRestartAt == nil {
		t.Error("expected next_restart_at during backoff")
	}
	if ps.LastError != "exited with code 137" || ps.LastSignal != "SIGKILL" {
		t.Errorf("unexpected error fields %+v", ps)
	}

	if ps := NewProcessStatus(info, now.Add(time.Minute)); ps.NextRestartAt != nil {
		t.Error("expected past restart time to be omitted")
	}
}

func TestExecuteWithRealSupervisor(t *testing.T) {
	spec := process.Spec{Name: "sleeper", Command: []string{"sleeper"}, AutoRestart: true}
	spawn := func(process.Spec, logging.Logger) (process.Instance, error) {
		return nil, &process.SpawnError{Name: "sleeper", Err: errors.New("not executable")}
	}
	sup, err := process.NewSupervisor([]process.Spec{spec}, &process.Options{Spawn: spawn})
	if err != nil {
		t.Fatalf("NewSupervisor failed: %v", err)
	}
	defer sup.Shutdown(context.Background())

	res := NewController(sup).Start(t.Context(), "sleeper")
	if res.Code != CodeSpawnError {
		t.Errorf("expected spawn_error from a real supervisor, got %+v", res)
	}
}
