package process

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/svisor/internal/logging"
)

// StateChangeCallback is called after every state transition.
// It runs on the process's supervision goroutine and must not block.
type StateChangeCallback func(name string, oldState, newState State, info Info)

type requestKind int

const (
	requestStart requestKind = iota
	requestStop
	requestRestart
)

func (k requestKind) String() string {
	switch k {
	case requestStart:
		return "start"
	case requestStop:
		return "stop"
	default:
		return "restart"
	}
}

type request struct {
	kind  requestKind
	reply chan error
}

// Supervised runs the state machine of one process.
// A single goroutine (run) owns all transitions. Requests, exit notifications
// and the backoff timer are serialized through it.
type Supervised struct {
	spec     Spec
	policy   Policy
	logger   logging.Logger
	spawn    SpawnFunc
	onChange StateChangeCallback
	now      func() time.Time

	requests chan request
	loopDone chan struct{}

	mu   sync.Mutex
	info Info

	// Owned by the run goroutine.
	inst   Instance
	timer  *time.Timer
	timerC <-chan time.Time
}

func newSupervised(spec Spec, logger logging.Logger, spawn SpawnFunc, onChange StateChangeCallback) *Supervised {
	return &Supervised{
		spec:     spec,
		policy:   NewPolicy(spec),
		logger:   logger,
		spawn:    spawn,
		onChange: onChange,
		now:      time.Now,
		requests: make(chan request),
		loopDone: make(chan struct{}),
		info: Info{
			Name:           spec.Name,
			State:          StateStopped,
			LastTransition: time.Now(),
		},
	}
}

// Name returns the process name.
func (s *Supervised) Name() string {
	return s.spec.Name
}

// Spec returns a copy of the process spec.
func (s *Supervised) Spec() Spec {
	return s.spec.Clone()
}

// Info returns a snapshot of the runtime state.
func (s *Supervised) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	if info.Running() && !info.StartedAt.IsZero() {
		info.Uptime = s.now().Sub(info.StartedAt).Truncate(time.Second)
	}
	return info
}

// Start spawns the process unless it is already starting or running.
func (s *Supervised) Start(ctx context.Context) error {
	return s.submit(ctx, requestStart)
}

// Stop terminates the process, or cancels a pending restart.
func (s *Supervised) Stop(ctx context.Context) error {
	return s.submit(ctx, requestStop)
}

// Restart stops the process if needed, resets its failure count and starts it.
func (s *Supervised) Restart(ctx context.Context) error {
	return s.submit(ctx, requestRestart)
}

func (s *Supervised) submit(ctx context.Context, kind requestKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := request{kind: kind, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.loopDone:
		return ErrSupervisorStopping
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the supervision loop. It returns when ctx is cancelled, after
// terminating any running process.
func (s *Supervised) run(ctx context.Context) {
	defer close(s.loopDone)

	for {
		var exited <-chan struct{}
		if s.inst != nil {
			exited = s.inst.Done()
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case req := <-s.requests:
			req.reply <- s.handle(req.kind)
		case <-exited:
			s.onExit()
		case <-s.timerC:
			s.timer = nil
			s.timerC = nil
			s.mu.Lock()
			s.info.RestartCount++
			s.mu.Unlock()
			s.logger.Info("Restarting process after backoff", "name", s.spec.Name)
			_ = s.spawnInstance()
		}
	}
}

func (s *Supervised) handle(kind requestKind) error {
	state := s.state()
	s.logger.Debug("Handling request", "name", s.spec.Name, "request", kind.String(), "state", state)

	switch kind {
	case requestStart:
		switch state {
		case StateStarting, StateRunning, StateStopping:
			return ErrAlreadyRunning
		case StateBackoff:
			s.cancelTimer()
		case StateFailed:
		case StateStopped:
		}
		s.resetFailures()
		return s.spawnInstance()

	case requestStop:
		switch state {
		case StateStopped:
			return ErrNotRunning
		case StateBackoff:
			s.cancelTimer()
			s.transition(StateStopped)
		case StateFailed:
			s.transition(StateStopped)
		default:
			s.terminate()
		}
		s.resetFailures()
		return nil

	default:
		switch state {
		case StateBackoff:
			s.cancelTimer()
		case StateStarting, StateRunning, StateStopping:
			s.terminate()
		case StateFailed, StateStopped:
		}
		s.resetFailures()
		return s.spawnInstance()
	}
}

// spawnInstance moves to starting and then running, or lets the policy
// decide what follows a spawn error.
func (s *Supervised) spawnInstance() error {
	s.transition(StateStarting)

	inst, err := s.spawn(s.spec, s.logger)
	if err != nil {
		s.logger.Error("Failed to spawn process", "name", s.spec.Name, "error", err)
		s.mu.Lock()
		s.info.LastError = err
		failures := s.info.ConsecutiveFailures
		s.mu.Unlock()
		s.apply(s.policy.Decide(failures, false, 0))
		return err
	}

	s.inst = inst
	s.mu.Lock()
	s.info.PID = inst.PID()
	s.info.StartedAt = s.now()
	s.info.LastError = nil
	s.mu.Unlock()
	s.transition(StateRunning)
	return nil
}

// onExit classifies an exit nobody asked for.
func (s *Supervised) onExit() {
	code, sig := s.inst.ExitStatus()
	s.inst = nil

	s.mu.Lock()
	sinceStart := s.now().Sub(s.info.StartedAt)
	s.info.PID = 0
	s.info.LastExitCode = code
	s.info.LastSignal = sig
	failures := s.info.ConsecutiveFailures
	s.mu.Unlock()

	clean := !s.spec.AutoRestart && code == 0 && sig == ""
	s.logger.Warn("Process exited", "name", s.spec.Name, "exit_code", code, "signal", sig, "uptime", sinceStart.Truncate(time.Millisecond))

	s.apply(s.policy.Decide(failures, clean, sinceStart))
}

func (s *Supervised) apply(d Decision) {
	s.mu.Lock()
	s.info.ConsecutiveFailures = d.Failures
	s.mu.Unlock()

	switch d.Action {
	case ActionNone:
		s.transition(StateStopped)
	case ActionRestartNow, ActionRestartAfter:
		s.timer = time.NewTimer(d.Delay)
		s.timerC = s.timer.C
		s.mu.Lock()
		s.info.NextRestartAt = s.now().Add(d.Delay)
		s.mu.Unlock()
		s.logger.Info("Scheduling restart", "name", s.spec.Name, "delay", d.Delay, "failures", d.Failures)
		s.transition(StateBackoff)
	case ActionGiveUp:
		s.logger.Error("Giving up on process", "name", s.spec.Name, "failures", d.Failures)
		s.transition(StateFailed)
	}
}

// terminate stops the running instance and always ends in stopped.
func (s *Supervised) terminate() {
	inst := s.inst
	if inst == nil {
		s.transition(StateStopped)
		return
	}
	s.transition(StateStopping)

	if err := inst.Terminate(s.spec.GracePeriod); err != nil {
		s.logger.Error("Failed to terminate process", "name", s.spec.Name, "error", err)
	}
	s.inst = nil

	s.mu.Lock()
	select {
	case <-inst.Done():
		s.info.LastExitCode, s.info.LastSignal = inst.ExitStatus()
	default:
	}
	s.info.PID = 0
	s.mu.Unlock()

	s.transition(StateStopped)
}

func (s *Supervised) shutdown() {
	s.cancelTimer()
	switch s.state() {
	case StateRunning, StateStarting, StateStopping:
		s.terminate()
	case StateBackoff, StateFailed:
		s.transition(StateStopped)
	case StateStopped:
	}
}

func (s *Supervised) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.timerC = nil
}

func (s *Supervised) resetFailures() {
	s.mu.Lock()
	s.info.ConsecutiveFailures = 0
	s.mu.Unlock()
}

func (s *Supervised) state() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.State
}

func (s *Supervised) transition(to State) {
	s.mu.Lock()
	from := s.info.State
	s.info.State = to
	s.info.LastTransition = s.now()
	if to != StateBackoff {
		s.info.NextRestartAt = time.Time{}
	}
	if to != StateRunning && to != StateStopping {
		s.info.PID = 0
	}
	s.mu.Unlock()

	if from == to {
		return
	}
	s.logger.Debug("State transition", "name", s.spec.Name, "from", from, "to", to)
	if s.onChange != nil {
		s.onChange(s.spec.Name, from, to, s.Info())
	}
}
