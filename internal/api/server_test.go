package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tektite-io/voicebox/internal/events"
	"github.com/tektite-io/voicebox/internal/frontend"
	"github.com/tektite-io/voicebox/internal/logging"
	"github.com/tektite-io/voicebox/internal/process"
	"github.com/tektite-io/voicebox/internal/sidecar"
	"github.com/tektite-io/voicebox/internal/window"
)

// fakeSidecar records calls and returns canned results.
type fakeSidecar struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	dataDir  string
	remote   bool
	starts   int
	stops    int
	info     sidecar.Info
}

func (f *fakeSidecar) Start(dataDir string, remote bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.dataDir, f.remote = dataDir, remote
	if f.startErr != nil {
		return "", f.startErr
	}
	f.info.State = process.StateReady
	return sidecar.StartedMessage, nil
}

func (f *fakeSidecar) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeSidecar) set(fn func(f *fakeSidecar)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type sidecarCalls struct {
	dataDir string
	remote  bool
	starts  int
	stops   int
}

func (f *fakeSidecar) snapshot() sidecarCalls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sidecarCalls{dataDir: f.dataDir, remote: f.remote, starts: f.starts, stops: f.stops}
}

func (f *fakeSidecar) Status() sidecar.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

type fakeWindow struct {
	closed chan struct{}
	once   sync.Once
}

func (w *fakeWindow) Close() error {
	w.once.Do(func() { close(w.closed) })
	return nil
}

// handshakeWindow adapts a Handshake to WindowService.
type handshakeWindow struct {
	handshake *window.Handshake
	window    *fakeWindow
}

func (h handshakeWindow) RequestClose() *window.Session {
	return h.handshake.RequestClose(h.window)
}

type testEnv struct {
	server  *httptest.Server
	bus     *events.Bus
	sidecar *fakeSidecar
	window  *fakeWindow
	store   *frontend.SettingsStore
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := events.New()
	env := &testEnv{
		bus:     bus,
		sidecar: &fakeSidecar{info: sidecar.Info{State: process.StateNotStarted, Binary: sidecar.DefaultBinary}},
		window:  &fakeWindow{closed: make(chan struct{})},
		store:   frontend.NewSettingsStore(t.TempDir(), bus, logger),
	}

	opts := &Options{
		DataDir:  "/var/lib/voicebox",
		Sidecar:  env.sidecar,
		Window:   handshakeWindow{window.NewHandshake(window.NewBusFrontend(bus), logger), env.window},
		Settings: env.store,
		EventBus: bus,
	}
	if mutate != nil {
		mutate(opts)
	}

	env.server = httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(data)
}

func decode(t *testing.T, body string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func TestStartServer(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/server/start", `{"remote": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var got struct{ Message string }
	decode(t, body, &got)
	if got.Message != sidecar.StartedMessage {
		t.Errorf("message = %q", got.Message)
	}
	if calls := env.sidecar.snapshot(); calls.dataDir != "/var/lib/voicebox" || !calls.remote {
		t.Errorf("Start(%q, %v), want configured data dir in remote mode", calls.dataDir, calls.remote)
	}
}

func TestStartServerWithoutBody(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/server/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if env.sidecar.snapshot().remote {
		t.Error("remote should default to false")
	}
}

func TestStartServerFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sidecar.set(func(f *fakeSidecar) {
		f.startErr = &sidecar.Error{Code: sidecar.ErrCodeTimedOutStarting, Message: "server did not become ready within 30s"}
	})

	resp, body := env.do(t, http.MethodPost, "/api/server/start", `{}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if !strings.Contains(body, sidecar.ErrCodeTimedOutStarting) {
		t.Errorf("body %s does not carry the error code", body)
	}
}

func TestStopServer(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodPost, "/api/server/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	env.sidecar.set(func(f *fakeSidecar) {
		f.stopErr = errors.New("TERMINATION_FAILED: failed to stop server")
	})
	resp, body := env.do(t, http.MethodPost, "/api/server/stop", "")
	if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(body, "TERMINATION_FAILED") {
		t.Errorf("status = %d, body = %s", resp.StatusCode, body)
	}
	if stops := env.sidecar.snapshot().stops; stops != 2 {
		t.Errorf("Stop called %d times, want 2", stops)
	}
}

func TestServerStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	started := time.Now().Add(-time.Minute).UTC()
	env.sidecar.set(func(f *fakeSidecar) {
		f.info = sidecar.Info{
			State:     process.StateReady,
			PID:       4242,
			Binary:    "/opt/voicebox/voicebox-server",
			StartedAt: started,
		}
	})

	resp, body := env.do(t, http.MethodGet, "/api/server/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got struct {
		State     string     `json:"state"`
		Running   bool       `json:"running"`
		PID       int        `json:"pid"`
		URL       string     `json:"url"`
		StartedAt *time.Time `json:"started_at"`
		ReadyAt   *time.Time `json:"ready_at"`
	}
	decode(t, body, &got)

	if got.State != "ready" || !got.Running || got.PID != 4242 || got.URL != sidecar.ServerURL {
		t.Errorf("status = %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
	if got.ReadyAt != nil {
		t.Errorf("ready_at = %v, want omitted", got.ReadyAt)
	}
}

func TestWindowCloseHandshake(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/window/close", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var session struct {
		SessionID string `json:"session_id"`
	}
	decode(t, body, &session)
	if session.SessionID == "" {
		t.Fatal("no session ID returned")
	}

	// A second request joins the session in flight
	_, body = env.do(t, http.MethodPost, "/api/window/close", "")
	var joined struct {
		SessionID string `json:"session_id"`
	}
	decode(t, body, &joined)
	if joined.SessionID != session.SessionID {
		t.Errorf("second request got session %q, want %q", joined.SessionID, session.SessionID)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/window/close-allowed", `{"session_id":"`+session.SessionID+`"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("close-allowed status = %d", resp.StatusCode)
	}

	select {
	case <-env.window.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("window not closed after acknowledgement")
	}
}

func TestWindowCloseAllowedWithoutBody(t *testing.T) {
	env := newTestEnv(t, nil)

	allowed := make(chan events.WindowCloseAllowedEvent, 1)
	defer env.bus.Subscribe(func(e events.WindowCloseAllowedEvent) { allowed <- e })()

	resp, _ := env.do(t, http.MethodPost, "/api/window/close-allowed", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	select {
	case e := <-allowed:
		if e.SessionID != "" || e.Source != SourceAPI {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("acknowledgement not published")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := env.do(t, http.MethodGet, "/api/settings", "")
	var got struct {
		Mode string `json:"mode"`
		Keep bool   `json:"keep_server_running_on_close"`
	}
	decode(t, body, &got)
	if got.Mode != frontend.ModeLocal || got.Keep {
		t.Errorf("defaults = %+v", got)
	}

	resp, body := env.do(t, http.MethodPut, "/api/settings",
		`{"server_url":"http://localhost:8000","mode":"remote","keep_server_running_on_close":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", resp.StatusCode, body)
	}
	if !env.store.KeepServerRunningOnClose() || env.store.Get().Mode != frontend.ModeRemote {
		t.Errorf("store not updated: %+v", env.store.Get())
	}
}

func TestSettingsRejectsUnknownMode(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodPut, "/api/settings",
		`{"server_url":"http://localhost:8000","mode":"cloud","keep_server_running_on_close":false}`)
	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		t.Errorf("status = %d, want a 4xx validation error", resp.StatusCode)
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.AuthUsername = "voicebox"
		o.AuthPassword = "secret"
	})

	resp, _ := env.do(t, http.MethodGet, "/api/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200 without auth", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/server/status", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without credentials = %d, want 401", resp.StatusCode)
	}

	auth := base64.StdEncoding.EncodeToString([]byte("voicebox:secret"))
	resp, _ = env.do(t, http.MethodGet, "/api/server/status?auth="+auth, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with query credentials = %d, want 200", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/server/status", nil)
	req.SetBasicAuth("voicebox", "wrong")
	wrong, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	wrong.Body.Close()
	if wrong.StatusCode != http.StatusUnauthorized {
		t.Errorf("status with wrong password = %d, want 401", wrong.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.CORSOrigins = []string{"http://localhost:5173"}
	})

	req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/api/server/start", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for a foreign origin", got)
	}
}

// sseData reads "data:" lines from an SSE response into a channel.
func sseData(body io.Reader) <-chan string {
	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
		close(lines)
	}()
	return lines
}

func nextData(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		if !ok {
			t.Fatal("SSE stream ended")
		}
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for SSE data")
		return ""
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/api/events")
	if err != nil {
		t.Fatalf("connect SSE: %v", err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	lines := sseData(resp.Body)

	// First event is the current worker state
	if first := nextData(t, lines); !strings.Contains(first, `"state":"not_started"`) {
		t.Errorf("first event = %s", first)
	}

	if err := env.bus.Publish(events.WindowCloseRequestedEvent{SessionID: "abc-123"}); err != nil {
		t.Fatal(err)
	}
	if got := nextData(t, lines); !strings.Contains(got, "abc-123") {
		t.Errorf("close request event = %s", got)
	}

	if err := env.bus.Publish(events.SidecarOutputEvent{Stream: "stderr", Line: "INFO:     Uvicorn running on http://127.0.0.1:8000"}); err != nil {
		t.Fatal(err)
	}
	if got := nextData(t, lines); !strings.Contains(got, "Uvicorn running") {
		t.Errorf("output event = %s", got)
	}
}

func TestEventStreamCloseRequestSurvivesOutputBurst(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/api/events")
	if err != nil {
		t.Fatalf("connect SSE: %v", err)
	}
	defer resp.Body.Close()
	lines := sseData(resp.Body)
	nextData(t, lines) // current state

	for i := range 1000 {
		_ = env.bus.Publish(events.SidecarOutputEvent{Stream: "stdout", Line: fmt.Sprintf("line %d", i)})
	}
	if err := env.bus.Publish(events.WindowCloseRequestedEvent{SessionID: "after-burst"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("SSE stream ended")
			}
			if strings.Contains(line, "after-burst") {
				return
			}
		case <-deadline:
			t.Fatal("close request never reached the stream")
		}
	}
}

func TestShutdownBeforeServe(t *testing.T) {
	s := NewServer(&Options{EventBus: events.New()})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() after Shutdown = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	client := &http.Client{Timeout: 500 * time.Millisecond}
	if resp, err := client.Get("http://" + addr + "/api/health"); err == nil {
		resp.Body.Close()
		t.Errorf("API still answers after Shutdown: status %d", resp.StatusCode)
	}
}

func TestShutdownStopsServing(t *testing.T) {
	s := NewServer(&Options{EventBus: events.New()})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()

	url := "http://" + l.Addr().String() + "/api/health"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, getErr := http.Get(url)
		if getErr == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", getErr)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestLogsHistory(t *testing.T) {
	logging.Initialize(logging.Config{Level: "info", Format: "text", BufferSize: 50})
	logger := logging.GetLogger("apitest")
	logger.Info("first entry")
	firstSeq := logging.GetBuffer().Tail(1)[0].Seq
	logger.Info("second entry")

	env := newTestEnv(t, nil)

	var page struct {
		Entries []events.LogEntryEvent `json:"entries"`
		LastSeq uint64                 `json:"last_seq"`
	}
	_, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/logs?since=%d", firstSeq), "")
	decode(t, body, &page)

	var messages []string
	for _, e := range page.Entries {
		if e.Seq <= firstSeq {
			t.Errorf("entry %d returned for since=%d", e.Seq, firstSeq)
		}
		if e.Module == "apitest" {
			messages = append(messages, e.Message)
		}
	}
	if len(messages) != 1 || messages[0] != "second entry" {
		t.Errorf("apitest messages = %v, want [second entry]", messages)
	}
	if n := len(page.Entries); n == 0 || page.LastSeq != page.Entries[n-1].Seq {
		t.Errorf("last_seq = %d for %d entries", page.LastSeq, n)
	}

	_, body = env.do(t, http.MethodGet, "/api/logs?limit=1", "")
	decode(t, body, &page)
	if len(page.Entries) != 1 {
		t.Errorf("limit=1 returned %d entries", len(page.Entries))
	}
}
