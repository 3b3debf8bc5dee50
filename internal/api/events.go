package api

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/svisor/internal/api/models"
	"github.com/smazurov/svisor/internal/events"
	"github.com/smazurov/svisor/internal/metrics/exporters"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of process transitions, crashes, supervisor lifecycle and process metrics. Filter to one process with ?process=name",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"process-state-changed": events.ProcessStateChangedEvent{},
			"process-crashed":       events.ProcessCrashedEvent{},
			"supervisor-lifecycle":  events.SupervisorLifecycleEvent{},
		}
		maps.Copy(eventTypes, exporters.GetEventTypes())
		return eventTypes
	}(), func(ctx context.Context, input *models.EventsInput, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ProcessStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessCrashedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SupervisorLifecycleEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Send initial connection confirmation
		processes := 0
		if s.controller != nil {
			processes = len(s.controller.Status(ctx, "").Processes)
		}
		if err := send.Data(events.SupervisorLifecycleEvent{
			Phase:     "connected",
			Processes: processes,
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if name := events.ProcessName(event); input.Process != "" && name != "" && name != input.Process {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
