package models

import (
	"github.com/smazurov/svisor/internal/control"
	"github.com/smazurov/svisor/internal/events"
)

// Health check models
type HealthData struct {
	Status        string `json:"status" example:"ok" doc:"Service status"`
	Message       string `json:"message" example:"API is healthy" doc:"Status message"`
	Processes     int    `json:"processes" example:"3" doc:"Number of configured processes"`
	DroppedEvents uint64 `json:"dropped_events" example:"0" doc:"Events slow stream clients missed"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Process models
type ProcessNameInput struct {
	Name string `path:"name" maxLength:"128" example:"web" doc:"Process name, or 'all' for every process"`
}

// ProcessResultResponse carries a control result. Status follows the result code
// so failures still have a machine-readable body.
type ProcessResultResponse struct {
	Status int
	Body   control.Result
}

// Event stream models
type EventsInput struct {
	Process string `query:"process" example:"web" doc:"Only stream events about this process; supervisor events always pass"`
}

// Log models
type LogsInput struct {
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Maximum number of entries, newest last"`
	Module string `query:"module" example:"supervisor" doc:"Only return entries from this module"`
	After  uint64 `query:"after" doc:"Only return entries with a sequence number above this, for polling"`
}

type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Buffered log entries"`
	Count   int                    `json:"count" example:"42" doc:"Number of entries returned"`
	LastSeq uint64                 `json:"last_seq" example:"1042" doc:"Pass as 'after' to fetch only newer entries"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsData struct {
	Modules map[string]string `json:"modules" doc:"Effective level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type SetLogLevelInput struct {
	Body struct {
		Module string `json:"module,omitempty" example:"supervisor" doc:"Module to change; empty changes the global level"`
		Level  string `json:"level" enum:"debug,info,warn,error" doc:"New level"`
	}
}
