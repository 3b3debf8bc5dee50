package process

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/svisor/internal/logging"
)

// Options configures a Supervisor.
type Options struct {
	Logger        logging.Logger
	OnStateChange StateChangeCallback
	// Spawn replaces process creation, mainly for tests. Defaults to DefaultSpawn.
	Spawn SpawnFunc
}

// Supervisor owns the ordered registry of supervised processes.
type Supervisor struct {
	logger  logging.Logger
	entries []*Supervised
	byName  map[string]*Supervised

	loopCancel context.CancelFunc
	loops      sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	startCancel context.CancelFunc
	startDone   chan struct{}
}

// NewSupervisor validates specs and launches one supervision goroutine per entry.
// No process is spawned until StartAll or Start is called.
func NewSupervisor(specs []Spec, opts *Options) (*Supervisor, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("supervisor")
	}
	spawn := opts.Spawn
	if spawn == nil {
		spawn = DefaultSpawn
	}

	s := &Supervisor{
		logger: logger,
		byName: make(map[string]*Supervised, len(specs)),
	}

	for _, spec := range specs {
		spec = spec.Clone()
		spec.ApplyDefaults()
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, exists := s.byName[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
		}
		entry := newSupervised(spec, logger, spawn, opts.OnStateChange)
		s.entries = append(s.entries, entry)
		s.byName[spec.Name] = entry
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	for _, entry := range s.entries {
		s.loops.Add(1)
		go func() {
			defer s.loops.Done()
			entry.run(ctx)
		}()
	}

	return s, nil
}

// Names returns process names in declared order.
func (s *Supervisor) Names() []string {
	names := make([]string, len(s.entries))
	for i, entry := range s.entries {
		names[i] = entry.Name()
	}
	return names
}

// Get returns the supervised entry for name.
func (s *Supervisor) Get(name string) (*Supervised, error) {
	entry, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	}
	return entry, nil
}

// StartAll starts every auto-start process in declared order.
// It stops early when StopAll or Shutdown begins.
func (s *Supervisor) StartAll(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSupervisorStopping
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.startCancel = cancel
	s.startDone = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.startCancel = nil
		s.startDone = nil
		s.mu.Unlock()
		cancel()
		close(done)
	}()

	var errs []error
	for _, entry := range s.entries {
		if !entry.spec.AutoStart {
			continue
		}
		if ctx.Err() != nil {
			s.logger.Info("Start-all cancelled", "remaining_from", entry.Name())
			return ErrSupervisorStopping
		}
		err := entry.Start(ctx)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyRunning):
		case errors.Is(err, context.Canceled), errors.Is(err, ErrSupervisorStopping):
			return ErrSupervisorStopping
		default:
			// Spawn failures are handled by the restart policy; keep going.
			s.logger.Warn("Failed to start process", "name", entry.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start starts the named process.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	entry, err := s.Get(name)
	if err != nil {
		return err
	}
	return entry.Start(ctx)
}

// Stop stops the named process.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	entry, err := s.Get(name)
	if err != nil {
		return err
	}
	return entry.Stop(ctx)
}

// Restart restarts the named process and resets its failure count.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	entry, err := s.Get(name)
	if err != nil {
		return err
	}
	return entry.Restart(ctx)
}

// Info returns the snapshot of the named process.
func (s *Supervisor) Info(name string) (Info, error) {
	entry, err := s.Get(name)
	if err != nil {
		return Info{}, err
	}
	return entry.Info(), nil
}

// Status returns one snapshot per process in declared order.
// Each entry is read under its own lock, so the list is not a global snapshot.
func (s *Supervisor) Status() []Info {
	infos := make([]Info, len(s.entries))
	for i, entry := range s.entries {
		infos[i] = entry.Info()
	}
	return infos
}

// StopAll cancels any StartAll in progress, waits for it to return, and
// stops every process concurrently, launching stops in reverse declared order.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	cancelStart, startDone := s.startCancel, s.startDone
	s.mu.Unlock()

	// A start request StartAll already queued must land before the stops
	if cancelStart != nil {
		cancelStart()
		select {
		case <-startDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var g errgroup.Group
	for _, entry := range slices.Backward(s.entries) {
		g.Go(func() error {
			err := entry.Stop(ctx)
			if err == nil || errors.Is(err, ErrNotRunning) || errors.Is(err, ErrSupervisorStopping) {
				return nil
			}
			return fmt.Errorf("stop %s: %w", entry.Name(), err)
		})
	}
	return g.Wait()
}

// Shutdown stops every process and ends the supervision goroutines.
// Later requests fail with ErrSupervisorStopping.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.StopAll(ctx)
	s.loopCancel()

	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}
