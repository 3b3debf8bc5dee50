package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/svisor/internal/logging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInstance is an Instance whose exit is driven by the test.
type fakeInstance struct {
	pid        int
	done       chan struct{}
	once       sync.Once
	mu         sync.Mutex
	code       int
	signal     string
	terminated atomic.Bool
}

func newFakeInstance(pid int) *fakeInstance {
	return &fakeInstance{pid: pid, done: make(chan struct{})}
}

func (f *fakeInstance) PID() int              { return f.pid }
func (f *fakeInstance) Done() <-chan struct{} { return f.done }

func (f *fakeInstance) ExitStatus() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code, f.signal
}

func (f *fakeInstance) exit(code int, signal string) {
	f.once.Do(func() {
		f.mu.Lock()
		f.code = code
		f.signal = signal
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeInstance) Terminate(time.Duration) error {
	f.terminated.Store(true)
	f.exit(143, "SIGTERM")
	return nil
}

// fakeSpawner hands out fake instances and records every spawn.
type fakeSpawner struct {
	mu      sync.Mutex
	nextPID int
	names   []string
	fail    map[string]error
	gate    chan struct{}
	spawned chan *fakeInstance
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		nextPID: 1000,
		fail:    make(map[string]error),
		spawned: make(chan *fakeInstance, 64),
	}
}

func (f *fakeSpawner) spawn(spec Spec, _ logging.Logger) (Instance, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, spec.Name)
	if err := f.fail[spec.Name]; err != nil {
		return nil, &SpawnError{Name: spec.Name, Err: err}
	}
	f.nextPID++
	inst := newFakeInstance(f.nextPID)
	f.spawned <- inst
	return inst, nil
}

func (f *fakeSpawner) spawnedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func (f *fakeSpawner) next(t *testing.T) *fakeInstance {
	t.Helper()
	select {
	case inst := <-f.spawned:
		return inst
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for spawn")
		return nil
	}
}

type transition struct {
	name string
	from State
	to   State
	info Info
}

// recorder collects state changes in order.
type recorder struct {
	ch chan transition
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan transition, 256)}
}

func (r *recorder) callback(name string, from, to State, info Info) {
	r.ch <- transition{name: name, from: from, to: to, info: info}
}

func (r *recorder) expect(t *testing.T, want State) transition {
	t.Helper()
	select {
	case tr := <-r.ch:
		if tr.to != want {
			t.Fatalf("expected transition to %s, got %s -> %s", want, tr.from, tr.to)
		}
		return tr
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for transition to %s", want)
		return transition{}
	}
}

func (r *recorder) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case tr := <-r.ch:
		t.Fatalf("unexpected transition %s -> %s", tr.from, tr.to)
	case <-time.After(wait):
	}
}

func testSpec(name string) Spec {
	spec := Spec{
		Name:        name,
		Command:     []string{"true"},
		AutoStart:   true,
		AutoRestart: true,
		Restart: RestartSpec{
			MaxRetries:  3,
			BackoffBase: 20 * time.Millisecond,
			BackoffCap:  160 * time.Millisecond,
			StableAfter: 10 * time.Second,
		},
	}
	spec.ApplyDefaults()
	return spec
}

// startSupervised runs a single state machine until the test ends.
func startSupervised(t *testing.T, spec Spec, spawner *fakeSpawner, rec *recorder) *Supervised {
	t.Helper()
	var onChange StateChangeCallback
	if rec != nil {
		onChange = rec.callback
	}
	s := newSupervised(spec, testLogger(), spawner.spawn, onChange)
	ctx, cancel := context.WithCancel(context.Background())
	go s.run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.loopDone
	})
	return s
}

var errNoSuchFile = errors.New("no such file or directory")
