package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/svisor/internal/api/models"
	"github.com/smazurov/svisor/internal/events"
	"github.com/smazurov/svisor/internal/metrics/exporters"
)

// registerMetricsRoutes registers the metrics SSE endpoint.
// Scrapers use the plain /metrics handler instead.
func (s *Server) registerMetricsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Metrics Server-Sent Events Stream",
		Description: "Per-process metrics snapshots, one event per process every second. Filter to one process with ?process=name",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, exporters.GetEventTypes(), func(ctx context.Context, input *models.EventsInput, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribe := events.SubscribeToChannel[events.ProcessMetricsEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if input.Process != "" && events.ProcessName(event) != input.Process {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
