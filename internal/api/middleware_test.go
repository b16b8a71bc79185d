package api

import (
	"log/slog"
	"testing"
)

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		method string
		path   string
		status int
		want   slog.Level
	}{
		{"GET", "/api/server/status", 200, slog.LevelInfo},
		{"POST", "/api/server/start", 500, slog.LevelError},
		{"POST", "/api/settings", 422, slog.LevelWarn},
		{"OPTIONS", "/api/settings", 204, slog.LevelDebug},
		{"GET", "/api/events", 200, slog.LevelDebug},
		{"GET", "/api/logs/stream", 401, slog.LevelWarn},
		{"GET", "/api/eventsource", 200, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.method, tt.path, tt.status); got != tt.want {
			t.Errorf("requestLevel(%s %s %d) = %v, want %v", tt.method, tt.path, tt.status, got, tt.want)
		}
	}
}
