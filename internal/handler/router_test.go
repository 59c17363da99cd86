package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chiehyu-lin/line-ai-relay/internal/config"
	"github.com/chiehyu-lin/line-ai-relay/internal/line"
	"github.com/chiehyu-lin/line-ai-relay/internal/observability"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/conversation"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/relay"
)

func newTestDeps(lineCfg config.LineConfig, lineAPI *line.Client) Deps {
	metrics := observability.NewMetrics("test_router", prometheus.NewRegistry())
	store := conversation.NewMemoryStore(0)
	return Deps{
		Line:    lineCfg,
		Relay:   relay.NewService(store, nil, nil, metrics),
		LineAPI: lineAPI,
		AIReady: false,
		Metrics: metrics,
	}
}

func TestHome(t *testing.T) {
	r := NewRouter(newTestDeps(config.LineConfig{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("expected a liveness message")
	}
}

func TestHealthReportsDegradedIntegrations(t *testing.T) {
	r := NewRouter(newTestDeps(config.LineConfig{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	for _, key := range []string{"line_bot_initialized", "ai_initialized", "loading_animation_available"} {
		if payload[key] != false {
			t.Fatalf("expected %s=false, got %v", key, payload[key])
		}
	}
}

func TestHealthReportsInitializedLine(t *testing.T) {
	lineCfg := config.LineConfig{ChannelAccessToken: "token", ChannelSecret: "secret"}
	r := NewRouter(newTestDeps(lineCfg, line.NewClient("token", time.Second)))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if payload["line_bot_initialized"] != true || payload["loading_animation_available"] != true {
		t.Fatalf("expected LINE flags true, got %v", payload)
	}
}

func TestTestLoadingRequiresUserID(t *testing.T) {
	r := NewRouter(newTestDeps(config.LineConfig{}, nil))

	req := httptest.NewRequest(http.MethodPost, "/test-loading", bytes.NewReader([]byte(`{"seconds":5}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTestLoadingMalformedBody(t *testing.T) {
	r := NewRouter(newTestDeps(config.LineConfig{}, nil))

	req := httptest.NewRequest(http.MethodPost, "/test-loading", bytes.NewReader([]byte("not json")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestTestLoadingTriggersIndicator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	lineAPI := line.NewClient("token", time.Second).WithBaseURL(srv.URL)
	r := NewRouter(newTestDeps(config.LineConfig{ChannelAccessToken: "token"}, lineAPI))

	req := httptest.NewRequest(http.MethodPost, "/test-loading", bytes.NewReader([]byte(`{"userId":"U1","seconds":8}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["success"] != true {
		t.Fatalf("expected success, got %v", payload)
	}
}

func TestTestLoadingWithoutClient(t *testing.T) {
	r := NewRouter(newTestDeps(config.LineConfig{}, nil))

	req := httptest.NewRequest(http.MethodPost, "/test-loading", bytes.NewReader([]byte(`{"userId":"U1"}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["success"] != false {
		t.Fatalf("expected success=false, got %v", payload)
	}
}
