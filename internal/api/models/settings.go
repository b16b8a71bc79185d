package models

// SettingsData holds the persisted frontend preferences.
type SettingsData struct {
	ServerURL                string `json:"server_url" example:"http://localhost:8000" doc:"Worker URL the frontend connects to" minLength:"1"`
	Mode                     string `json:"mode" example:"local" doc:"Connection mode" enum:"local,remote"`
	KeepServerRunningOnClose bool   `json:"keep_server_running_on_close" example:"false" doc:"Leave the worker running after the window closes"`
}

type SettingsResponse struct {
	Body SettingsData
}

type SettingsUpdateRequest struct {
	Body SettingsData
}
