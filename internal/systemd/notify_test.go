package systemd

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type recordingNotify struct {
	mu     sync.Mutex
	states []string
	sent   bool
	err    error
}

func (r *recordingNotify) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return r.sent, r.err
}

func (r *recordingNotify) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTestNotifier(rec *recordingNotify) *Notifier {
	n := NewNotifier()
	n.notify = rec.notify
	return n
}

func TestNotifierReady(t *testing.T) {
	rec := &recordingNotify{sent: true}
	n := newTestNotifier(rec)

	n.Ready()
	n.Status("3 processes running")
	n.Stopping()

	if !n.IsReady() {
		t.Error("expected ready after READY=1 was delivered")
	}
	want := []string{daemon.SdNotifyReady, "STATUS=3 processes running", daemon.SdNotifyStopping}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v, want %v", rec.states, want)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Errorf("state[%d] = %q, want %q", i, rec.states[i], want[i])
		}
	}
}

func TestNotifierOutsideSystemd(t *testing.T) {
	n := newTestNotifier(&recordingNotify{sent: false})
	n.Ready()
	if n.IsReady() {
		t.Error("expected not ready when no notify socket is present")
	}

	n = newTestNotifier(&recordingNotify{err: errors.New("socket closed")})
	n.Ready()
	if n.IsReady() {
		t.Error("expected not ready when sd_notify fails")
	}
}

func TestWatchdogPings(t *testing.T) {
	rec := &recordingNotify{sent: true}
	n := newTestNotifier(rec)

	n.startPinger(t.Context(), 10*time.Millisecond)
	n.startPinger(t.Context(), 10*time.Millisecond) // second call is ignored
	time.Sleep(75 * time.Millisecond)
	n.Stop()

	pings := rec.count(daemon.SdNotifyWatchdog)
	if pings < 3 {
		t.Errorf("expected several watchdog pings, got %d", pings)
	}

	time.Sleep(30 * time.Millisecond)
	if after := rec.count(daemon.SdNotifyWatchdog); after != pings {
		t.Errorf("pings continued after Stop: %d -> %d", pings, after)
	}
}

func TestStartWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	rec := &recordingNotify{sent: true}
	n := newTestNotifier(rec)

	n.StartWatchdog(t.Context())
	n.Stop()
	if rec.count(daemon.SdNotifyWatchdog) != 0 {
		t.Error("expected no pings without WatchdogSec")
	}
}

func TestUnitName(t *testing.T) {
	tests := map[string]string{
		"":              DefaultUnit,
		"svisor":        "svisor.service",
		"svisor.socket": "svisor.socket",
	}
	for in, want := range tests {
		if got := UnitName(in); got != want {
			t.Errorf("UnitName(%q) = %q, want %q", in, got, want)
		}
	}
}
