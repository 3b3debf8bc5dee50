package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/svisor/internal/api/models"
	"github.com/smazurov/svisor/internal/control"
)

// statusFor maps a control result code to an HTTP status.
func statusFor(code control.Code) int {
	switch code {
	case control.CodeOK:
		return http.StatusOK
	case control.CodeUnknownProcess:
		return http.StatusNotFound
	case control.CodeAlreadyRunning, control.CodeNotRunning:
		return http.StatusConflict
	case control.CodeInvalidCommand:
		return http.StatusBadRequest
	case control.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func resultResponse(res control.Result) *models.ProcessResultResponse {
	return &models.ProcessResultResponse{Status: statusFor(res.Code), Body: res}
}

func (s *Server) execute(ctx context.Context, cmd control.Command) (*models.ProcessResultResponse, error) {
	if s.controller == nil {
		return nil, huma.Error503ServiceUnavailable("Supervisor is not running")
	}
	return resultResponse(s.controller.Execute(ctx, cmd)), nil
}

func (s *Server) registerProcessRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes",
		Summary:     "List Processes",
		Description: "Status of every supervised process in declared order",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.ProcessResultResponse, error) {
		return s.execute(ctx, control.Command{Action: control.ActionStatus})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/api/processes/{name}",
		Summary:     "Get Process",
		Description: "Status of a single supervised process",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(ctx context.Context, input *models.ProcessNameInput) (*models.ProcessResultResponse, error) {
		return s.execute(ctx, control.Command{Action: control.ActionStatus, Name: input.Name})
	})

	actions := []struct {
		action  control.Action
		summary string
		desc    string
	}{
		{control.ActionStart, "Start Process", "Start a stopped or failed process. Use 'all' to start every process"},
		{control.ActionStop, "Stop Process", "Stop a process and cancel any pending restart. Use 'all' to stop every process"},
		{control.ActionRestart, "Restart Process", "Stop then start a process, resetting its failure count. Use 'all' for every process"},
	}
	for _, a := range actions {
		action := a.action
		huma.Register(s.api, huma.Operation{
			OperationID: string(action) + "-process",
			Method:      http.MethodPost,
			Path:        "/api/processes/{name}/" + string(action),
			Summary:     a.summary,
			Description: a.desc,
			Tags:        []string{"processes"},
			Security:    withAuth(),
			Errors:      []int{401, 404, 409, 500, 503},
		}, func(ctx context.Context, input *models.ProcessNameInput) (*models.ProcessResultResponse, error) {
			return s.execute(ctx, control.Command{Action: action, Name: input.Name})
		})
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-all-processes",
		Method:      http.MethodPost,
		Path:        "/api/processes/stop-all",
		Summary:     "Stop All",
		Description: "Stop every process concurrently and wait for all of them",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.ProcessResultResponse, error) {
		return s.execute(ctx, control.Command{Action: control.ActionStopAll})
	})
}
