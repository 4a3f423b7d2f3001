package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/healthpilot/internal/config"
	"github.com/ent0n29/healthpilot/internal/dictation"
	"github.com/ent0n29/healthpilot/internal/live"
	"github.com/ent0n29/healthpilot/internal/observability"
	"github.com/ent0n29/healthpilot/internal/protocol"
	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/voice"
)

type fakeLive struct {
	mu       sync.Mutex
	state    live.State
	startErr error
	frames   int
	opts     live.StartOptions
}

func (f *fakeLive) Start(_ context.Context, opts live.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = opts
	if f.startErr != nil {
		return f.startErr
	}
	f.state = live.StateActive
	return nil
}

func (f *fakeLive) Stop() {
	f.mu.Lock()
	f.state = live.StateIdle
	f.mu.Unlock()
}

func (f *fakeLive) Snapshot() live.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.state
	if state == "" {
		state = live.StateIdle
	}
	return live.Snapshot{State: state}
}

func (f *fakeLive) SendAuxiliaryFrame(data []byte, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	return f.state == live.StateActive && len(data) > 0, nil
}

type fakeVoice struct {
	listenErr error
	status    voice.Status
}

func (f *fakeVoice) Listen(context.Context) error {
	if f.listenErr != nil {
		return f.listenErr
	}
	f.status.Listening = true
	return nil
}
func (f *fakeVoice) StopListening()                { f.status.Listening = false }
func (f *fakeVoice) Reset(context.Context) error   { return nil }
func (f *fakeVoice) Status() voice.Status          { return f.status }
func (f *fakeVoice) SetLocale(locale, lang string) { f.status.Locale, f.status.Language = locale, lang }

type fakeDictation struct {
	status dictation.Status
}

func (f *fakeDictation) Start(_ context.Context, field, _ string) error {
	if field == "" {
		return dictation.ErrNoField
	}
	f.status = dictation.Status{Active: true, Field: field}
	return nil
}
func (f *fakeDictation) Stop()                    { f.status = dictation.Status{} }
func (f *fakeDictation) Status() dictation.Status { return f.status }

type fakeBridge struct {
	mu       sync.Mutex
	out      chan<- any
	handled  []any
	detached int
}

func (b *fakeBridge) Attach(out chan<- any) func() {
	b.mu.Lock()
	b.out = out
	b.mu.Unlock()
	out <- protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "clock_sync", Detail: "0"}
	return func() {
		b.mu.Lock()
		b.out = nil
		b.detached++
		b.mu.Unlock()
	}
}

func (b *fakeBridge) Handle(msg any) {
	b.mu.Lock()
	b.handled = append(b.handled, msg)
	b.mu.Unlock()
}

func (b *fakeBridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out != nil
}

func (b *fakeBridge) snapshot() (handled []any, detached int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]any(nil), b.handled...), b.detached
}

type testServer struct {
	*httptest.Server
	live      *fakeLive
	voice     *fakeVoice
	dictation *fakeDictation
	bridge    *fakeBridge
	metrics   *observability.Metrics
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	ts := &testServer{
		live:      &fakeLive{},
		voice:     &fakeVoice{status: voice.Status{Locale: "en-US", Language: "English"}},
		dictation: &fakeDictation{},
		bridge:    &fakeBridge{},
		metrics:   observability.NewMetrics("test_httpapi", prometheus.NewRegistry()),
	}
	srv := New(cfg, Deps{
		Live:      ts.live,
		Voice:     ts.voice,
		Dictation: ts.dictation,
		Bridge:    ts.bridge,
		Metrics:   ts.metrics,
	})
	ts.Server = httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	res, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer res.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s response: %v", url, err)
	}
	return res, payload
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, config.Config{LiveTransport: "mock", IntentMode: "mock"})

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if payload["bridge_connected"] != false {
		t.Fatalf("bridge_connected = %v, want false", payload["bridge_connected"])
	}
	if payload["live_state"] != string(live.StateIdle) {
		t.Fatalf("live_state = %v, want idle", payload["live_state"])
	}
}

func TestLiveStartStop(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	res, payload := postJSON(t, ts.URL+"/v1/live/start", map[string]string{"instruction": " be brief "})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want %d (%v)", res.StatusCode, http.StatusOK, payload)
	}
	if payload["state"] != string(live.StateActive) {
		t.Fatalf("state = %v, want active", payload["state"])
	}
	if ts.live.opts.Instruction != "be brief" {
		t.Fatalf("instruction = %q, want trimmed", ts.live.opts.Instruction)
	}

	res, payload = postJSON(t, ts.URL+"/v1/live/stop", nil)
	if res.StatusCode != http.StatusOK || payload["state"] != string(live.StateIdle) {
		t.Fatalf("stop = %d %v, want 200 idle", res.StatusCode, payload)
	}
}

func TestLiveStartErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("open: %w", reliability.ErrPermissionDenied), http.StatusForbidden, "permission_denied"},
		{fmt.Errorf("open: %w", reliability.ErrDeviceUnavailable), http.StatusConflict, "device_unavailable"},
		{fmt.Errorf("dial: %w", reliability.ErrTransport), http.StatusBadGateway, "transport_error"},
		{live.ErrAbandoned, http.StatusConflict, "abandoned"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			ts := newTestServer(t, config.Config{})
			ts.live.startErr = tc.err

			res, payload := postJSON(t, ts.URL+"/v1/live/start", nil)
			if res.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tc.status)
			}
			if payload["code"] != tc.code {
				t.Fatalf("code = %v, want %s", payload["code"], tc.code)
			}
		})
	}
}

func TestLiveFrame(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	res, _ := postJSON(t, ts.URL+"/v1/live/frame", map[string]string{"data_base64": "%%%"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid frame status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	postJSON(t, ts.URL+"/v1/live/start", nil)
	res, payload := postJSON(t, ts.URL+"/v1/live/frame", map[string]string{
		"mime_type":   "image/jpeg",
		"data_base64": "/9j/4AAQ",
	})
	if res.StatusCode != http.StatusOK || payload["sent"] != true {
		t.Fatalf("frame = %d %v, want 200 sent", res.StatusCode, payload)
	}
}

func TestVoiceEndpoints(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	res, payload := postJSON(t, ts.URL+"/v1/voice/listen", nil)
	if res.StatusCode != http.StatusOK || payload["listening"] != true {
		t.Fatalf("listen = %d %v, want 200 listening", res.StatusCode, payload)
	}

	ts.voice.listenErr = voice.ErrDictationActive
	res, _ = postJSON(t, ts.URL+"/v1/voice/listen", nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("listen during dictation status = %d, want %d", res.StatusCode, http.StatusConflict)
	}

	res, _ = postJSON(t, ts.URL+"/v1/voice/locale", map[string]string{"language": "Hindi"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("locale without tag status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	res, payload = postJSON(t, ts.URL+"/v1/voice/locale", map[string]string{"locale": "hi-IN", "language": "Hindi"})
	if res.StatusCode != http.StatusOK || payload["locale"] != "hi-IN" {
		t.Fatalf("locale = %d %v, want hi-IN", res.StatusCode, payload)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/voice/task", nil)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/voice/task error = %v", err)
	}
	delRes.Body.Close()
	if delRes.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d, want %d", delRes.StatusCode, http.StatusOK)
	}
}

func TestDictationEndpoints(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	res, _ := postJSON(t, ts.URL+"/v1/dictation/start", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("start without field status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	res, payload := postJSON(t, ts.URL+"/v1/dictation/start", map[string]string{"field": "symptoms"})
	if res.StatusCode != http.StatusOK || payload["field"] != "symptoms" {
		t.Fatalf("start = %d %v, want symptoms", res.StatusCode, payload)
	}
	res, payload = postJSON(t, ts.URL+"/v1/dictation/stop", nil)
	if res.StatusCode != http.StatusOK || payload["active"] != false {
		t.Fatalf("stop = %d %v, want inactive", res.StatusCode, payload)
	}
}

func TestPerfLatency(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	ts.metrics.ObserveStageLatency("live_connect", 120*time.Millisecond)

	res, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.LatencySnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	found := false
	for _, stage := range snap.Stages {
		if stage.Stage == "live_connect" && stage.Samples == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("live_connect stage missing from %+v", snap)
	}
}

func TestBridgeWebsocket(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/bridge/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read clock sync: %v", err)
	}
	if first["code"] != "clock_sync" {
		t.Fatalf("first message = %v, want clock_sync", first)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	var errEvent map[string]any
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if errEvent["type"] != string(protocol.TypeErrorEvent) || errEvent["code"] != "invalid_client_message" {
		t.Fatalf("error event = %v", errEvent)
	}

	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ControlMicReady}); err != nil {
		t.Fatalf("write control: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		handled, _ := ts.bridge.snapshot()
		if len(handled) == 1 {
			if _, ok := handled[0].(protocol.ClientControl); !ok {
				t.Fatalf("handled %T, want ClientControl", handled[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("control message never reached the bridge")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()
	for {
		if _, detached := ts.bridge.snapshot(); detached == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bridge was not detached after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBridgeWebsocketRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/bridge/ws"

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("dial with foreign origin succeeded")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin response = %v, want 403", res)
	}
}
