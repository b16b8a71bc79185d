package models

import "time"

// SidecarStartBody is the optional request body of the start operation.
type SidecarStartBody struct {
	Remote bool `json:"remote,omitempty" example:"false" doc:"Bind the worker to 0.0.0.0 so other machines can reach it"`
}

type SidecarStartRequest struct {
	Body *SidecarStartBody `required:"false"`
}

// SidecarStatusData is a snapshot of the worker lifecycle.
type SidecarStatusData struct {
	State     string     `json:"state" example:"ready" doc:"Lifecycle state" enum:"not_started,starting,ready,stopping,stopped,failed_to_start,timed_out_starting,exited_unexpectedly"`
	Running   bool       `json:"running" doc:"Whether a worker process exists"`
	PID       int        `json:"pid,omitempty" example:"41234" doc:"Worker process ID"`
	Binary    string     `json:"binary" example:"voicebox-server" doc:"Worker executable"`
	DataDir   string     `json:"data_dir,omitempty" doc:"Data directory passed to the worker"`
	Remote    bool       `json:"remote" doc:"Worker listens on all interfaces"`
	URL       string     `json:"url" example:"http://localhost:8000" doc:"Worker URL"`
	StartedAt *time.Time `json:"started_at,omitempty" doc:"When the worker was spawned"`
	ReadyAt   *time.Time `json:"ready_at,omitempty" doc:"When the worker reported ready"`
	LastError string     `json:"last_error,omitempty" doc:"Most recent failure"`
}

type SidecarStatusResponse struct {
	Body SidecarStatusData
}

// SidecarMetricsData mirrors the sidecar Prometheus series.
type SidecarMetricsData struct {
	State            string             `json:"state" example:"ready" doc:"Current lifecycle state"`
	Starts           map[string]float64 `json:"starts" doc:"Start attempts by outcome"`
	OutputLines      map[string]float64 `json:"output_lines" doc:"Worker output lines by stream"`
	LastReadySeconds float64            `json:"last_ready_seconds" example:"3.2" doc:"Time the last successful start took to become ready"`
}

type SidecarMetricsResponse struct {
	Body SidecarMetricsData
}
