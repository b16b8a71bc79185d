package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/tektite-io/voicebox/internal/updater"
)

type fakeUpdater struct {
	info     *updater.UpdateInfo
	checkErr error
	applyErr error
}

func (f *fakeUpdater) CheckForUpdate(context.Context) (*updater.UpdateInfo, error) {
	return f.info, f.checkErr
}

func (f *fakeUpdater) ApplyUpdate(context.Context) error { return f.applyErr }

func (f *fakeUpdater) GetStatus() *updater.Status {
	return &updater.Status{State: updater.StateIdle, CurrentVersion: "dev", Enabled: true}
}

func (f *fakeUpdater) IsEnabled() bool        { return true }
func (f *fakeUpdater) DisabledReason() string { return "" }

func TestUpdateRoutes(t *testing.T) {
	fake := &fakeUpdater{info: &updater.UpdateInfo{CurrentVersion: "dev", LatestVersion: "0.2.0", UpdateAvailable: true}}
	env := newTestEnv(t, func(o *Options) { o.UpdateService = fake })

	resp, body := env.do(t, http.MethodGet, "/api/update/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", resp.StatusCode, body)
	}
	var status updater.Status
	decode(t, body, &status)
	if status.State != updater.StateIdle || !status.Enabled {
		t.Errorf("status = %+v", status)
	}

	resp, body = env.do(t, http.MethodGet, "/api/update/check", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check: %d %s", resp.StatusCode, body)
	}
	var info updater.UpdateInfo
	decode(t, body, &info)
	if info.LatestVersion != "0.2.0" || !info.UpdateAvailable {
		t.Errorf("check = %+v", info)
	}
}

func TestUpdateErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{updater.ErrCodeInvalidState, http.StatusConflict},
		{updater.ErrCodeNoUpdate, http.StatusBadRequest},
		{updater.ErrCodeNotFound, http.StatusNotFound},
		{updater.ErrCodeDisabled, http.StatusServiceUnavailable},
		{updater.ErrCodeDownloadFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			fake := &fakeUpdater{applyErr: &updater.Error{Code: tt.code, Message: "nope"}}
			env := newTestEnv(t, func(o *Options) { o.UpdateService = fake })

			resp, body := env.do(t, http.MethodPost, "/api/update/apply", "")
			if resp.StatusCode != tt.want {
				t.Errorf("apply status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestUpdateRoutesAbsentWithoutService(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.do(t, http.MethodGet, "/api/update/status", "")
	if resp.StatusCode == http.StatusOK {
		t.Error("update status served without an update service")
	}
}
