package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eduardohotta/cortex/internal/config"
	"github.com/eduardohotta/cortex/internal/engine"
	"github.com/eduardohotta/cortex/internal/metrics"
	"github.com/eduardohotta/cortex/internal/protocol"
	"github.com/eduardohotta/cortex/internal/transcript"
	"github.com/eduardohotta/cortex/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testServer struct {
	http    *httptest.Server
	emitter *protocol.Emitter
	hub     *EventHub
	metrics *metrics.Metrics
	output  *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	cfg := config.Default()
	cfg.Model.Backend = "stub"
	cfg.Model.APIKey = "super-secret"

	w, err := transcription.NewWorker(transcription.Config{
		Engine: engine.Settings{Backend: engine.BackendStub, ModelSize: "base", Device: "cpu"},
	}, nil, nil, m, testLogger())
	if err != nil {
		t.Fatalf("NewWorker failed: %v", err)
	}
	if err := w.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var out bytes.Buffer
	emitter := protocol.NewEmitter(&out)
	emitter.OnEmit(m.RecordLine)
	hub := NewEventHub(testLogger(), m)
	emitter.AddMirror(hub)

	h := NewHTTPServer(cfg.HTTP, testLogger(), cfg, Components{
		Worker:  w,
		Emitter: emitter,
		Events:  hub,
	}, reg, m, "test")

	ts := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testServer{http: ts, emitter: emitter, hub: hub, metrics: m, output: &out}
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", url, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode %s failed: %v", url, err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := getJSON(t, ts.http.URL+"/health")
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", body["status"])
	}
	components, _ := body["components"].(map[string]any)
	engineState, _ := components["engine"].(map[string]any)
	if engineState["mode"] != "primary" || engineState["device"] != "cpu" {
		t.Errorf("Unexpected engine state %v", engineState)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.emitter.Warning("queue saturated")

	body := getJSON(t, ts.http.URL+"/stats")
	lines, _ := body["lines"].(map[string]any)
	if lines[protocol.KindWarning] != float64(1) {
		t.Errorf("Expected 1 warning line, got %v", lines)
	}
	if _, ok := body["worker"]; !ok {
		t.Error("Expected worker statistics")
	}
}

func TestConfigEndpointOmitsSecrets(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/config")
	if err != nil {
		t.Fatalf("GET /config failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if strings.Contains(string(raw), "super-secret") {
		t.Error("Config endpoint must not expose the API key")
	}
	if !strings.Contains(string(raw), `"backend":"stub"`) {
		t.Errorf("Expected model backend in config, got %s", raw)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.emitter.Transcript(transcript.Event{Text: "olá", IsFinal: true, Language: "pt", Provider: transcript.Provider})

	resp, err := http.Get(ts.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(raw), `cortex_lines_emitted_total{kind="transcript"} 1`) {
		t.Errorf("Expected transcript line counter in metrics output")
	}
}

func TestUnknownPathRecordsError(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/nope")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.http.URL+"/health", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestEventsMirrorLines(t *testing.T) {
	ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ts.hub.Clients() != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", ts.hub.Clients())
	}

	if err := ts.emitter.Transcript(transcript.Event{Text: "bom dia", IsFinal: true, Language: "pt", Provider: transcript.Provider}); err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	want := `{"text":"bom dia","isFinal":true,"language":"pt","provider":"faster-whisper"}`
	if string(msg) != want {
		t.Errorf("Expected mirrored line %s, got %s", want, msg)
	}
	if strings.TrimSpace(ts.output.String()) != want {
		t.Errorf("Expected the same line on the primary output, got %q", ts.output.String())
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for ts.hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ts.hub.Clients() != 0 {
		t.Errorf("Expected subscriber to be removed after disconnect")
	}
}
