package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/svisor/internal/logging"
)

const defaultKillTimeout = 2 * time.Second

// Instance is a spawned OS process as seen by the supervision loop.
type Instance interface {
	PID() int
	Done() <-chan struct{}
	ExitStatus() (code int, signal string)
	Terminate(grace time.Duration) error
}

// SpawnFunc starts the process described by spec.
type SpawnFunc func(spec Spec, logger logging.Logger) (Instance, error)

// DefaultSpawn spawns a real OS process.
func DefaultSpawn(spec Spec, logger logging.Logger) (Instance, error) {
	return Spawn(spec, logger)
}

// Handle owns one running OS process, its process group and its log files.
type Handle struct {
	name        string
	cmd         *exec.Cmd
	logger      logging.Logger
	stopSignal  os.Signal
	signal      func(*exec.Cmd, os.Signal) error
	killTimeout time.Duration
	closers     []io.Closer

	done       chan struct{}
	mu         sync.Mutex
	exitCode   int
	exitSignal string

	terminateOnce sync.Once
	terminateErr  error
}

// Spawn starts the process described by spec.
// Output goes to the configured log files, or to logger line by line when no file is set.
func Spawn(spec Spec, logger logging.Logger) (*Handle, error) {
	if len(spec.Command) == 0 {
		return nil, &SpawnError{Name: spec.Name, Err: errors.New("empty command")}
	}

	sigName := spec.StopSignal
	if sigName == "" {
		sigName = DefaultStopSignal
	}
	sig, err := parseStopSignal(sigName)
	if err != nil {
		return nil, &SpawnError{Name: spec.Name, Err: err}
	}

	h := &Handle{
		name:        spec.Name,
		logger:      logger,
		stopSignal:  sig,
		signal:      sendStop,
		killTimeout: defaultKillTimeout,
		done:        make(chan struct{}),
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = h.killTimeout

	stdout, err := h.outputWriter(spec.StdoutLog, "stdout")
	if err != nil {
		h.closeOutputs()
		return nil, &SpawnError{Name: spec.Name, Err: err}
	}
	cmd.Stdout = stdout

	if spec.RedirectStderr {
		cmd.Stderr = stdout
	} else {
		stderr, err := h.outputWriter(spec.StderrLog, "stderr")
		if err != nil {
			h.closeOutputs()
			return nil, &SpawnError{Name: spec.Name, Err: err}
		}
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		h.closeOutputs()
		return nil, &SpawnError{Name: spec.Name, Err: err}
	}
	h.cmd = cmd

	logger.Info("Process started", "name", spec.Name, "pid", cmd.Process.Pid, "command", spec.CommandLine())

	go h.wait()

	return h, nil
}

// outputWriter opens a log file in append mode, or falls back to a line logger.
func (h *Handle) outputWriter(path, source string) (io.Writer, error) {
	if path == "" {
		w := &lineWriter{logger: h.logger, source: source}
		h.closers = append(h.closers, w)
		return w, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s log: %w", source, err)
	}
	h.closers = append(h.closers, f)
	return f, nil
}

func (h *Handle) closeOutputs() {
	for _, c := range h.closers {
		if err := c.Close(); err != nil {
			h.logger.Warn("Failed to close process output", "name", h.name, "error", err)
		}
	}
	h.closers = nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	code, sig := exitCodeFromError(err)
	if err != nil && code == 1 && sig == "" {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			h.logger.Error("Process wait failed", "name", h.name, "error", err)
		}
	}
	h.closeOutputs()

	h.mu.Lock()
	h.exitCode = code
	h.exitSignal = sig
	h.mu.Unlock()

	close(h.done)
}

// PID returns the OS process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Done is closed once the process has exited and its outputs are closed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Poll reports whether the process has exited without blocking.
func (h *Handle) Poll() (exited bool, code int) {
	select {
	case <-h.done:
		code, _ := h.ExitStatus()
		return true, code
	default:
		return false, 0
	}
}

// ExitStatus returns the exit code and terminating signal name.
// Only meaningful after Done is closed.
func (h *Handle) ExitStatus() (code int, signal string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exitSignal
}

// Terminate sends the stop signal to the process group, waits up to grace,
// then kills the group. Safe to call more than once.
func (h *Handle) Terminate(grace time.Duration) error {
	h.terminateOnce.Do(func() {
		h.terminateErr = h.terminate(grace)
	})
	return h.terminateErr
}

func (h *Handle) terminate(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.logger.Info("Stopping process", "name", h.name, "pid", h.PID(), "signal", signalName(h.stopSignal))
	if err := h.signal(h.cmd, h.stopSignal); err != nil {
		// Nothing will end the process during the grace period
		h.logger.Warn("Failed to send stop signal, forcing kill", "name", h.name, "error", err)
	} else {
		select {
		case <-h.done:
			return nil
		case <-time.After(grace):
			h.logger.Warn("Graceful shutdown timeout, forcing kill", "name", h.name, "timeout", grace)
		}
	}

	if err := forceKill(h.cmd); err != nil {
		h.logger.Error("Failed to kill process", "name", h.name, "error", err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(h.killTimeout):
		h.logger.Error("Process did not exit after kill signal", "name", h.name)
		return fmt.Errorf("process %s did not exit after kill", h.name)
	}
}

// mergeEnv overlays overrides on base, keeping override keys in sorted order.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// lineWriter logs complete lines of child output.
type lineWriter struct {
	logger logging.Logger
	source string
	mu     sync.Mutex
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(string(bytes.TrimRight(w.buf[:i], "\r")))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
	return nil
}

func (w *lineWriter) emit(line string) {
	if w.source == "stderr" {
		w.logger.Warn(line, "source", w.source)
		return
	}
	w.logger.Info(line, "source", w.source)
}
