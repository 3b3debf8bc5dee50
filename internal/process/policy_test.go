package process

import (
	"testing"
	"time"
)

func TestPolicyDecide(t *testing.T) {
	base := Policy{
		AutoRestart: true,
		Restart: RestartSpec{
			MaxRetries:  3,
			BackoffBase: time.Second,
			BackoffCap:  8 * time.Second,
			StableAfter: 10 * time.Second,
		},
	}

	tests := []struct {
		name       string
		policy     Policy
		failures   int
		clean      bool
		sinceStart time.Duration
		want       Decision
	}{
		{
			name:   "clean exit never restarts",
			policy: base,
			clean:  true,
			want:   Decision{Action: ActionNone},
		},
		{
			name:   "first failure waits base",
			policy: base,
			want:   Decision{Action: ActionRestartAfter, Delay: time.Second, Failures: 1},
		},
		{
			name:     "second failure doubles",
			policy:   base,
			failures: 1,
			want:     Decision{Action: ActionRestartAfter, Delay: 2 * time.Second, Failures: 2},
		},
		{
			name:     "third failure doubles again",
			policy:   base,
			failures: 2,
			want:     Decision{Action: ActionRestartAfter, Delay: 4 * time.Second, Failures: 3},
		},
		{
			name:     "max retries reached gives up",
			policy:   base,
			failures: 3,
			want:     Decision{Action: ActionGiveUp, Failures: 4},
		},
		{
			name:       "stable run resets failures",
			policy:     base,
			failures:   3,
			sinceStart: 11 * time.Second,
			want:       Decision{Action: ActionRestartAfter, Delay: time.Second, Failures: 1},
		},
		{
			name: "delay capped",
			policy: Policy{AutoRestart: true, Restart: RestartSpec{
				MaxRetries: -1, BackoffBase: time.Second, BackoffCap: 8 * time.Second, StableAfter: time.Minute,
			}},
			failures: 10,
			want:     Decision{Action: ActionRestartAfter, Delay: 8 * time.Second, Failures: 11},
		},
		{
			name: "unlimited retries never give up",
			policy: Policy{AutoRestart: true, Restart: RestartSpec{
				MaxRetries: -1, BackoffBase: time.Second, BackoffCap: 8 * time.Second,
			}},
			failures: 1000,
			want:     Decision{Action: ActionRestartAfter, Delay: 8 * time.Second, Failures: 1001},
		},
		{
			name:   "zero base restarts immediately",
			policy: Policy{AutoRestart: true, Restart: RestartSpec{MaxRetries: 3}},
			want:   Decision{Action: ActionRestartNow, Failures: 1},
		},
		{
			name:   "auto restart disabled gives up",
			policy: Policy{AutoRestart: false, Restart: base.Restart},
			want:   Decision{Action: ActionGiveUp, Failures: 1},
		},
		{
			name:   "zero max retries gives up at once",
			policy: Policy{AutoRestart: true, Restart: RestartSpec{MaxRetries: 0, BackoffBase: time.Second}},
			want:   Decision{Action: ActionGiveUp, Failures: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Decide(tt.failures, tt.clean, tt.sinceStart)
			if got != tt.want {
				t.Errorf("Decide(%d, %v, %s) = %+v, want %+v", tt.failures, tt.clean, tt.sinceStart, got, tt.want)
			}
		})
	}
}

func TestPolicyBackoffSequence(t *testing.T) {
	p := Policy{AutoRestart: true, Restart: RestartSpec{
		MaxRetries: -1, BackoffBase: time.Second, BackoffCap: 8 * time.Second,
	}}

	want := []time.Duration{1, 2, 4, 8, 8, 8}
	failures := 0
	for i, w := range want {
		d := p.Decide(failures, false, 0)
		if d.Delay != w*time.Second {
			t.Errorf("restart %d: expected delay %s, got %s", i, w*time.Second, d.Delay)
		}
		failures = d.Failures
	}
}

func TestActionString(t *testing.T) {
	if ActionRestartAfter.String() != "restart_after" {
		t.Errorf("unexpected string %q", ActionRestartAfter.String())
	}
	if Action(42).String() != "unknown" {
		t.Errorf("unexpected string %q", Action(42).String())
	}
}
