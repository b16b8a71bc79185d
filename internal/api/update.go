package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/tektite-io/voicebox/internal/api/models"
	"github.com/tektite-io/voicebox/internal/updater"
)

type updateStatusResponse struct {
	Body *updater.Status
}

type updateCheckResponse struct {
	Body *updater.UpdateInfo
}

// registerUpdateRoutes mounts /api/update/*. Nothing is mounted without a service.
func (s *Server) registerUpdateRoutes() {
	svc := s.options.UpdateService
	if svc == nil {
		return
	}

	// Status is served even when disabled so the UI can show the reason
	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Get Update Status",
		Description: "Get the current update state",
		Tags:        []string{"update"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*updateStatusResponse, error) {
		return &updateStatusResponse{Body: svc.GetStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodGet,
		Path:        "/api/update/check",
		Summary:     "Check for Updates",
		Description: "Check if a newer version is available without downloading",
		Tags:        []string{"update"},
		Errors:      []int{401, 404, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*updateCheckResponse, error) {
		info, err := svc.CheckForUpdate(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		return &updateCheckResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply Update",
		Description: "Download and install the available update, then restart the host. The worker is stopped first.",
		Tags:        []string{"update"},
		Errors:      []int{400, 401, 404, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.ApplyUpdate(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.MessageResponse{
			Body: models.MessageData{Message: "Update installed, restarting..."},
		}, nil
	})
}

// mapUpdateError converts updater errors to Huma HTTP errors.
func mapUpdateError(err error) error {
	switch updater.ErrorCode(err) {
	case updater.ErrCodeInvalidState:
		return huma.Error409Conflict(err.Error())
	case updater.ErrCodeNoUpdate:
		return huma.Error400BadRequest(err.Error())
	case updater.ErrCodeNotFound:
		return huma.Error404NotFound(err.Error())
	case updater.ErrCodeDisabled:
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
