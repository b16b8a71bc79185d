package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/tektite-io/voicebox/internal/api/models"
	"github.com/tektite-io/voicebox/internal/events"
	"github.com/tektite-io/voicebox/internal/window"
)

// SourceAPI marks acknowledgements that came in over HTTP.
const SourceAPI = "api"

// registerWindowRoutes registers the close handshake endpoints.
func (s *Server) registerWindowRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "allow-window-close",
		Method:      http.MethodPost,
		Path:        "/api/window/close-allowed",
		Summary:     "Allow Window Close",
		Description: "Acknowledge a window-close-requested event once frontend cleanup is done",
		Tags:        []string{"window"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, input *models.CloseAllowedRequest) (*struct{}, error) {
		var sessionID string
		if input.Body != nil {
			sessionID = input.Body.SessionID
		}
		err := s.eventBus.Publish(events.WindowCloseAllowedEvent{
			SessionID: sessionID,
			Source:    SourceAPI,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("host is shutting down", err)
		}
		return nil, nil
	})

	if s.options.Window == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID:   "request-window-close",
		Method:        http.MethodPost,
		Path:          "/api/window/close",
		Summary:       "Request Window Close",
		Description:   "Start the close handshake. Joins the handshake already in flight, if any.",
		Tags:          []string{"window"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.CloseSessionResponse, error) {
		session := s.options.Window.RequestClose()
		return &models.CloseSessionResponse{Body: toCloseSession(session)}, nil
	})
}

func toCloseSession(session *window.Session) models.CloseSessionData {
	return models.CloseSessionData{
		SessionID: session.ID,
		State:     string(session.State()),
		Outcome:   string(session.Outcome()),
		StartedAt: session.StartedAt,
	}
}
