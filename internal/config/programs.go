package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/smazurov/svisor/internal/process"
)

// ProgramConfig is one [[programs]] entry as written in the config file.
type ProgramConfig struct {
	Name           string            `toml:"name" yaml:"name"`
	Command        any               `toml:"command" yaml:"command"` // string or list of strings
	Directory      string            `toml:"directory,omitempty" yaml:"directory,omitempty"`
	Environment    map[string]string `toml:"environment,omitempty" yaml:"environment,omitempty"`
	AutoStart      *bool             `toml:"autostart,omitempty" yaml:"autostart,omitempty"`
	AutoRestart    *bool             `toml:"autorestart,omitempty" yaml:"autorestart,omitempty"`
	MaxRetries     *int              `toml:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	BackoffBase    string            `toml:"backoff_base,omitempty" yaml:"backoff_base,omitempty"`
	BackoffCap     string            `toml:"backoff_cap,omitempty" yaml:"backoff_cap,omitempty"`
	StableAfter    string            `toml:"stable_after,omitempty" yaml:"stable_after,omitempty"`
	StopSignal     string            `toml:"stop_signal,omitempty" yaml:"stop_signal,omitempty"`
	GracePeriod    string            `toml:"grace_period,omitempty" yaml:"grace_period,omitempty"`
	StdoutLogfile  string            `toml:"stdout_logfile,omitempty" yaml:"stdout_logfile,omitempty"`
	StderrLogfile  string            `toml:"stderr_logfile,omitempty" yaml:"stderr_logfile,omitempty"`
	RedirectStderr bool              `toml:"redirect_stderr,omitempty" yaml:"redirect_stderr,omitempty"`
}

// ProgramsFile is the top-level layout holding the program list.
type ProgramsFile struct {
	Programs []ProgramConfig `toml:"programs" yaml:"programs"`
}

var interpolationPattern = regexp.MustCompile(`%\((\w+)\)s`)

// Interpolate replaces %(NAME)s with the value of environment variable NAME.
// Unset variables expand to the empty string.
func Interpolate(value string) string {
	return interpolationPattern.ReplaceAllStringFunc(value, func(m string) string {
		name := interpolationPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}

// LoadPrograms reads the ordered program list from a TOML or YAML file.
// Entry order in the file is the supervisor's start order.
func LoadPrograms(path string) ([]process.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read programs config: %w", err)
	}

	var file ProgramsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML programs config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML programs config: %w", err)
		}
	}

	specs := make([]process.Spec, 0, len(file.Programs))
	seen := make(map[string]bool, len(file.Programs))
	var errs []error
	for i, pc := range file.Programs {
		spec, err := pc.Spec()
		if err != nil {
			errs = append(errs, fmt.Errorf("programs[%d]: %w", i, err))
			continue
		}
		if seen[spec.Name] {
			errs = append(errs, fmt.Errorf("programs[%d]: %w: %s", i, process.ErrDuplicateName, spec.Name))
			continue
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return specs, nil
}

// Spec converts the entry into a validated process.Spec with defaults applied.
func (pc ProgramConfig) Spec() (process.Spec, error) {
	spec := process.Spec{
		Name:           strings.TrimSpace(pc.Name),
		Dir:            Interpolate(pc.Directory),
		AutoStart:      boolOr(pc.AutoStart, true),
		AutoRestart:    boolOr(pc.AutoRestart, true),
		StopSignal:     pc.StopSignal,
		StdoutLog:      Interpolate(pc.StdoutLogfile),
		StderrLog:      Interpolate(pc.StderrLogfile),
		RedirectStderr: pc.RedirectStderr,
		Restart: process.RestartSpec{
			MaxRetries: process.DefaultMaxRetries,
		},
	}
	if pc.MaxRetries != nil {
		spec.Restart.MaxRetries = *pc.MaxRetries
	}

	command, err := commandArgs(pc.Command)
	if err != nil {
		return spec, fmt.Errorf("program %q: %w", spec.Name, err)
	}
	spec.Command = command

	if len(pc.Environment) > 0 {
		spec.Env = make(map[string]string, len(pc.Environment))
		for k, v := range pc.Environment {
			spec.Env[k] = Interpolate(v)
		}
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"backoff_base", pc.BackoffBase, &spec.Restart.BackoffBase},
		{"backoff_cap", pc.BackoffCap, &spec.Restart.BackoffCap},
		{"stable_after", pc.StableAfter, &spec.Restart.StableAfter},
		{"grace_period", pc.GracePeriod, &spec.GracePeriod},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return spec, fmt.Errorf("program %q: invalid %s %q: %w", spec.Name, d.key, d.value, err)
		}
		*d.dst = parsed
	}

	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

// commandArgs accepts a shell-like string or an explicit argv list.
func commandArgs(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		args, err := process.SplitCommand(Interpolate(v))
		if err != nil {
			return nil, fmt.Errorf("invalid command: %w", err)
		}
		return args, nil
	case []any:
		args := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("command[%d] must be a string, got %T", i, item)
			}
			args = append(args, Interpolate(s))
		}
		return args, nil
	case []string:
		args := make([]string, len(v))
		for i, s := range v {
			args[i] = Interpolate(s)
		}
		return args, nil
	default:
		return nil, fmt.Errorf("command must be a string or list, got %T", raw)
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
