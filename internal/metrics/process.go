// Package metrics provides Prometheus metrics for supervised processes.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/svisor/internal/process"
)

var allStates = []process.State{
	process.StateStopped,
	process.StateStarting,
	process.StateRunning,
	process.StateStopping,
	process.StateBackoff,
	process.StateFailed,
}

var (
	processState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "svisor",
		Subsystem: "process",
		Name:      "state",
		Help:      "Current process state, 1 for the active state label",
	}, []string{"name", "state"})

	processUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "svisor",
		Subsystem: "process",
		Name:      "up",
		Help:      "Whether the process is running",
	}, []string{"name"})

	processRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "svisor",
		Subsystem: "process",
		Name:      "restarts_total",
		Help:      "Automatic restarts after backoff",
	}, []string{"name"})

	processCrashes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "svisor",
		Subsystem: "process",
		Name:      "unexpected_exits_total",
		Help:      "Exits that were not requested",
	}, []string{"name"})

	processFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "svisor",
		Subsystem: "process",
		Name:      "consecutive_failures",
		Help:      "Consecutive unexpected exits",
	}, []string{"name"})

	processExitCode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "svisor",
		Subsystem: "process",
		Name:      "last_exit_code",
		Help:      "Exit code of the last run",
	}, []string{"name"})

	processUptime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "svisor",
		Subsystem: "process",
		Name:      "uptime_seconds",
		Help:      "Seconds since the current run started",
	}, []string{"name"})

	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "svisor",
		Name:      "build_info",
		Help:      "Build information",
	}, []string{"version", "commit"})

	// Local cache for SSE exporter access.
	processCache   = make(map[string]*ProcessMetrics)
	processCacheMu sync.RWMutex
)

// ProcessMetrics holds current metric values for a process.
type ProcessMetrics struct {
	State               process.State
	Up                  bool
	Restarts            int
	ConsecutiveFailures int
	LastExitCode        int
	Uptime              time.Duration
}

// SetBuildInfo records the running version.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// RecordTransition updates all gauges from a state transition.
func RecordTransition(name string, oldState, newState process.State, info process.Info) {
	for _, s := range allStates {
		v := 0.0
		if s == newState {
			v = 1
		}
		processState.WithLabelValues(name, string(s)).Set(v)
	}

	up := newState == process.StateRunning
	if up {
		processUp.WithLabelValues(name).Set(1)
	} else {
		processUp.WithLabelValues(name).Set(0)
		processUptime.WithLabelValues(name).Set(0)
	}

	if oldState == process.StateRunning && (newState == process.StateBackoff || newState == process.StateFailed || newState == process.StateStopped) {
		processCrashes.WithLabelValues(name).Inc()
	}
	processFailures.WithLabelValues(name).Set(float64(info.ConsecutiveFailures))
	processExitCode.WithLabelValues(name).Set(float64(info.LastExitCode))

	updateCache(name, func(m *ProcessMetrics) {
		m.State = newState
		m.Up = up
		// Only automatic restarts count; a manual start during backoff leaves RestartCount alone
		if delta := info.RestartCount - m.Restarts; delta > 0 {
			processRestarts.WithLabelValues(name).Add(float64(delta))
		}
		m.Restarts = info.RestartCount
		m.ConsecutiveFailures = info.ConsecutiveFailures
		m.LastExitCode = info.LastExitCode
		if !up {
			m.Uptime = 0
		}
	})
}

// SetUptime sets the uptime of a running process.
func SetUptime(name string, uptime time.Duration) {
	processUptime.WithLabelValues(name).Set(uptime.Seconds())
	updateCache(name, func(m *ProcessMetrics) { m.Uptime = uptime })
}

// DeleteProcessMetrics removes all metrics for a process.
func DeleteProcessMetrics(name string) {
	for _, s := range allStates {
		processState.DeleteLabelValues(name, string(s))
	}
	processUp.DeleteLabelValues(name)
	processRestarts.DeleteLabelValues(name)
	processCrashes.DeleteLabelValues(name)
	processFailures.DeleteLabelValues(name)
	processExitCode.DeleteLabelValues(name)
	processUptime.DeleteLabelValues(name)

	processCacheMu.Lock()
	delete(processCache, name)
	processCacheMu.Unlock()
}

// GetProcessMetrics returns current metric values for a process.
func GetProcessMetrics(name string) *ProcessMetrics {
	processCacheMu.RLock()
	defer processCacheMu.RUnlock()
	if m, ok := processCache[name]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllProcessMetrics returns metrics for all known processes.
func GetAllProcessMetrics() map[string]*ProcessMetrics {
	processCacheMu.RLock()
	defer processCacheMu.RUnlock()
	result := make(map[string]*ProcessMetrics, len(processCache))
	for name, m := range processCache {
		dup := *m
		result[name] = &dup
	}
	return result
}

func updateCache(name string, update func(*ProcessMetrics)) {
	processCacheMu.Lock()
	defer processCacheMu.Unlock()
	m, ok := processCache[name]
	if !ok {
		m = &ProcessMetrics{}
		processCache[name] = m
	}
	update(m)
}
