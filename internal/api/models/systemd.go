package models

// SystemdServiceStatus contains the status information for a systemd service.
type SystemdServiceStatus struct {
	Service     string `json:"service" example:"svisor.service" doc:"Unit name"`
	ActiveState string `json:"active_state" example:"active" doc:"Unit ActiveState (active, inactive, failed, etc.)"`
	SubState    string `json:"sub_state" example:"running" doc:"Unit SubState"`
	MainPID     uint32 `json:"main_pid" example:"1234" doc:"Main process id, 0 when not running"`
	NotifyReady bool   `json:"notify_ready" example:"true" doc:"Whether READY=1 was delivered to systemd"`
}

// SystemdServiceStatusResponse wraps SystemdServiceStatus for API responses.
type SystemdServiceStatusResponse struct {
	Body SystemdServiceStatus
}
