package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/tektite-io/voicebox/internal/api/models"
	"github.com/tektite-io/voicebox/internal/frontend"
)

// registerSettingsRoutes registers the frontend settings endpoints.
func (s *Server) registerSettingsRoutes() {
	store := s.options.Settings
	if store == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Get Settings",
		Description: "Frontend preferences stored in settings.toml",
		Tags:        []string{"settings"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SettingsResponse, error) {
		return &models.SettingsResponse{Body: toSettingsData(store.Get())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPut,
		Path:        "/api/settings",
		Summary:     "Update Settings",
		Description: "Replace the frontend preferences. Publishes settings-changed.",
		Tags:        []string{"settings"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500},
	}, func(_ context.Context, input *models.SettingsUpdateRequest) (*models.SettingsResponse, error) {
		next := frontend.Settings{
			ServerURL:                input.Body.ServerURL,
			Mode:                     input.Body.Mode,
			KeepServerRunningOnClose: input.Body.KeepServerRunningOnClose,
		}
		if err := store.Update(next); err != nil {
			if errors.Is(err, frontend.ErrInvalidSettings) {
				return nil, huma.Error400BadRequest(err.Error())
			}
			return nil, huma.Error500InternalServerError("failed to save settings", err)
		}
		return &models.SettingsResponse{Body: toSettingsData(store.Get())}, nil
	})
}

func toSettingsData(s frontend.Settings) models.SettingsData {
	return models.SettingsData{
		ServerURL:                s.ServerURL,
		Mode:                     s.Mode,
		KeepServerRunningOnClose: s.KeepServerRunningOnClose,
	}
}
