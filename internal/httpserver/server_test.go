package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type mockSource struct {
	joined bool
}

func (m *mockSource) IsJoined() bool { return m.joined }

type mockDBChecker struct {
	err error
}

func (m *mockDBChecker) Ping(_ context.Context) error { return m.err }

func newTestServer(joined bool) *Server {
	logger := zap.NewNop()
	src := &mockSource{joined: joined}
	// nil pool — readyz will report registry as "error".
	return NewServer(":0", nil, src, logger)
}

func newTestServerWithDB(db DBChecker, joined bool) *Server {
	s := newTestServer(joined)
	s.dbChecker = db
	return s
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := newTestServer(false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", body["status"])
	}
}

func TestReadyz_NotReady_SourceNotJoined(t *testing.T) {
	s := newTestServer(false)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	checks := body["checks"].(map[string]any)
	if checks["record_source"] != "not_joined" {
		t.Errorf("expected record_source 'not_joined', got '%v'", checks["record_source"])
	}
	if checks["registry"] != "error" {
		t.Errorf("expected registry 'error' (nil pool), got '%v'", checks["registry"])
	}
}

func TestReadyz_AllHealthy(t *testing.T) {
	db := &mockDBChecker{err: nil}
	s := newTestServerWithDB(db, true)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ready" {
		t.Errorf("expected status 'ready', got '%v'", body["status"])
	}
}
