package process

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// AllTarget is the reserved name that addresses every supervised process.
const AllTarget = "all"

// Default restart and stop settings applied by ApplyDefaults.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 8 * time.Second
	DefaultStableAfter = 10 * time.Second
	DefaultGracePeriod = 5 * time.Second
	DefaultStopSignal  = "TERM"
)

// RestartSpec configures the restart policy of a single process.
type RestartSpec struct {
	// MaxRetries bounds consecutive failed restarts. -1 means unlimited.
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// StableAfter is the run time after which an exit no longer counts as consecutive.
	StableAfter time.Duration
}

// Spec is the immutable description of one supervised process.
type Spec struct {
	Name           string
	Command        []string
	Dir            string
	Env            map[string]string
	AutoStart      bool
	AutoRestart    bool
	Restart        RestartSpec
	StopSignal     string
	GracePeriod    time.Duration
	StdoutLog      string
	StderrLog      string
	RedirectStderr bool
}

// ApplyDefaults fills zero-valued restart and stop settings.
// MaxRetries is left alone because zero is a meaningful value.
func (s *Spec) ApplyDefaults() {
	if s.Restart.BackoffBase <= 0 {
		s.Restart.BackoffBase = DefaultBackoffBase
	}
	if s.Restart.BackoffCap <= 0 {
		s.Restart.BackoffCap = DefaultBackoffCap
	}
	if s.Restart.StableAfter <= 0 {
		s.Restart.StableAfter = DefaultStableAfter
	}
	if s.GracePeriod <= 0 {
		s.GracePeriod = DefaultGracePeriod
	}
	if s.StopSignal == "" {
		s.StopSignal = DefaultStopSignal
	}
}

// Validate checks a spec for values the supervisor cannot run with.
func (s *Spec) Validate() error {
	var errs []error
	switch {
	case strings.TrimSpace(s.Name) == "":
		errs = append(errs, errors.New("name is required"))
	case s.Name == AllTarget:
		errs = append(errs, fmt.Errorf("name %q is reserved", AllTarget))
	case strings.ContainsAny(s.Name, " /\\"):
		errs = append(errs, fmt.Errorf("name %q must not contain spaces or slashes", s.Name))
	}
	if len(s.Command) == 0 || s.Command[0] == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if s.Restart.MaxRetries < -1 {
		errs = append(errs, fmt.Errorf("max_retries must be -1 or greater, got %d", s.Restart.MaxRetries))
	}
	if s.Restart.BackoffCap < s.Restart.BackoffBase {
		errs = append(errs, fmt.Errorf("backoff_cap %s is below backoff_base %s", s.Restart.BackoffCap, s.Restart.BackoffBase))
	}
	if s.StopSignal != "" {
		if _, err := parseStopSignal(s.StopSignal); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		if s.Name != "" {
			return fmt.Errorf("program %q: %w", s.Name, err)
		}
		return err
	}
	return nil
}

// Clone returns a deep copy of the spec.
func (s Spec) Clone() Spec {
	s.Command = slices.Clone(s.Command)
	s.Env = maps.Clone(s.Env)
	return s
}

// CommandLine renders the argv for log output.
func (s *Spec) CommandLine() string {
	return strings.Join(s.Command, " ")
}
