package exporters

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/svisor/internal/events"
	"github.com/smazurov/svisor/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// NamesFunc returns process names in declared order.
type NamesFunc func() []string

// SSEExporter publishes a ProcessMetricsEvent per process every interval,
// in declared order when a NamesFunc is set.
type SSEExporter struct {
	eventBus EventPublisher
	names    NamesFunc
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter. names may be nil.
func NewSSEExporter(eventBus EventPublisher, names NamesFunc) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		names:    names,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

// order lists cached names, declared ones first and the rest sorted.
func (s *SSEExporter) order(cached map[string]*metrics.ProcessMetrics) []string {
	var out []string
	if s.names != nil {
		for _, name := range s.names() {
			if _, ok := cached[name]; ok {
				out = append(out, name)
			}
		}
	}
	var rest []string
	for name := range cached {
		if !slices.Contains(out, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func (s *SSEExporter) publishMetrics() {
	cached := metrics.GetAllProcessMetrics()
	for _, name := range s.order(cached) {
		m := cached[name]
		s.eventBus.Publish(events.ProcessMetricsEvent{
			EventType:           "process_metrics",
			Name:                name,
			State:               string(m.State),
			UptimeSeconds:       strconv.FormatFloat(m.Uptime.Seconds(), 'f', 0, 64),
			Restarts:            strconv.Itoa(m.Restarts),
			ConsecutiveFailures: strconv.Itoa(m.ConsecutiveFailures),
		})
	}
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"process-metrics": events.ProcessMetricsEvent{},
	}
}
