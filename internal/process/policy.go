package process

import "time"

// Action is what the supervision loop does after a process exit.
type Action int

// Restart actions.
const (
	ActionNone Action = iota
	ActionRestartNow
	ActionRestartAfter
	ActionGiveUp
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRestartNow:
		return "restart_now"
	case ActionRestartAfter:
		return "restart_after"
	case ActionGiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Action Action
	Delay  time.Duration
	// Failures is the consecutive failure count to store after acting.
	Failures int
}

// Policy decides whether and when to restart an exited process.
type Policy struct {
	AutoRestart bool
	Restart     RestartSpec
}

// NewPolicy builds the policy for spec.
func NewPolicy(spec Spec) Policy {
	return Policy{AutoRestart: spec.AutoRestart, Restart: spec.Restart}
}

// Decide returns the action for an exit after sinceStart of run time with
// consecutiveFailures prior failures. clean marks an expected exit.
func (p Policy) Decide(consecutiveFailures int, clean bool, sinceStart time.Duration) Decision {
	if clean {
		return Decision{Action: ActionNone}
	}

	failures := consecutiveFailures
	if p.Restart.StableAfter > 0 && sinceStart > p.Restart.StableAfter {
		failures = 0
	}

	if !p.AutoRestart {
		return Decision{Action: ActionGiveUp, Failures: failures + 1}
	}
	if p.Restart.MaxRetries >= 0 && failures >= p.Restart.MaxRetries {
		return Decision{Action: ActionGiveUp, Failures: failures + 1}
	}

	delay := p.backoff(failures)
	if delay <= 0 {
		return Decision{Action: ActionRestartNow, Failures: failures + 1}
	}
	return Decision{Action: ActionRestartAfter, Delay: delay, Failures: failures + 1}
}

// backoff returns min(base * 2^failures, cap) without overflowing.
func (p Policy) backoff(failures int) time.Duration {
	delay := p.Restart.BackoffBase
	if delay <= 0 {
		return 0
	}
	limit := p.Restart.BackoffCap
	for range failures {
		if (limit > 0 && delay >= limit) || delay >= 24*time.Hour {
			break
		}
		delay *= 2
	}
	if limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}
