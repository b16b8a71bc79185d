package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/tektite-io/voicebox/internal/api/models"
	"github.com/tektite-io/voicebox/internal/metrics"
	"github.com/tektite-io/voicebox/internal/sidecar"
)

// registerSidecarRoutes registers worker lifecycle endpoints.
func (s *Server) registerSidecarRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-metrics-sidecar",
		Method:      http.MethodGet,
		Path:        "/api/metrics/sidecar",
		Summary:     "Worker Metrics",
		Description: "Snapshot of the worker lifecycle counters also exported on /metrics",
		Tags:        []string{"server"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SidecarMetricsResponse, error) {
		m := metrics.GetSidecarMetrics()
		return &models.SidecarMetricsResponse{
			Body: models.SidecarMetricsData{
				State:            m.State,
				Starts:           m.Starts,
				OutputLines:      m.OutputLines,
				LastReadySeconds: m.LastReadySeconds,
			},
		}, nil
	})

	svc := s.options.Sidecar
	if svc == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "start-server",
		Method:      http.MethodPost,
		Path:        "/api/server/start",
		Summary:     "Start Server",
		Description: "Spawn the worker and wait until it reports ready (up to 30s). Returns immediately if it is already running.",
		Tags:        []string{"server"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, input *models.SidecarStartRequest) (*models.MessageResponse, error) {
		remote := input.Body != nil && input.Body.Remote
		msg, err := svc.Start(s.options.DataDir, remote)
		if err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}
		return &models.MessageResponse{Body: models.MessageData{Message: msg}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-server",
		Method:      http.MethodPost,
		Path:        "/api/server/stop",
		Summary:     "Stop Server",
		Description: "Terminate the worker. Succeeds when no worker is running.",
		Tags:        []string{"server"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.Stop(); err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Server stopped"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-server-status",
		Method:      http.MethodGet,
		Path:        "/api/server/status",
		Summary:     "Server Status",
		Description: "Current worker lifecycle state",
		Tags:        []string{"server"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SidecarStatusResponse, error) {
		return &models.SidecarStatusResponse{Body: toSidecarStatus(svc.Status())}, nil
	})
}

func toSidecarStatus(info sidecar.Info) models.SidecarStatusData {
	return models.SidecarStatusData{
		State:     string(info.State),
		Running:   info.State.HasProcess(),
		PID:       info.PID,
		Binary:    info.Binary,
		DataDir:   info.DataDir,
		Remote:    info.Remote,
		URL:       sidecar.ServerURL,
		StartedAt: optionalTime(info.StartedAt),
		ReadyAt:   optionalTime(info.ReadyAt),
		LastError: info.LastError,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
