package models

import "time"

// CloseSessionData describes a window close handshake.
type CloseSessionData struct {
	SessionID string    `json:"session_id" example:"3f0c1f7e-8a55-4c1e-9f0e-5b7a2f0f6a11" doc:"Handshake session ID"`
	State     string    `json:"state" example:"waiting_for_ack" doc:"Handshake state" enum:"requested,waiting_for_ack,closing,done"`
	Outcome   string    `json:"outcome,omitempty" example:"acknowledged" doc:"How the handshake resolved" enum:"acknowledged,timed_out,emit_failed"`
	StartedAt time.Time `json:"started_at" doc:"When the close was requested"`
}

type CloseSessionResponse struct {
	Body CloseSessionData
}

// CloseAllowedBody acknowledges a close request. An empty session ID
// acknowledges whichever handshake is in flight.
type CloseAllowedBody struct {
	SessionID string `json:"session_id,omitempty" doc:"Session being acknowledged"`
}

type CloseAllowedRequest struct {
	Body *CloseAllowedBody `required:"false"`
}
