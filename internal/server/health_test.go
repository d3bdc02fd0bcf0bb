package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

func probeReady(t *testing.T, pingers ...Pinger) (*httptest.ResponseRecorder, readyResponse) {
	t.Helper()
	s := newTestServer()
	s.pingers = pingers

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode readiness body: %v", err)
	}
	return w, resp
}

func Test_HandleHealth_Liveness(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected ok, got %q", body["status"])
	}
}

func Test_HandleReady_NoDependenciesIsReady(t *testing.T) {
	t.Parallel()

	w, resp := probeReady(t)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !resp.Ready || len(resp.Checks) != 0 {
		t.Errorf("expected ready with no checks, got ready=%v checks=%d", resp.Ready, len(resp.Checks))
	}
}

func Test_HandleReady_AllDependenciesHealthy(t *testing.T) {
	t.Parallel()

	w, resp := probeReady(t,
		&fakePinger{name: "llm"},
		&fakePinger{name: "checkpoints"},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !resp.Ready {
		t.Error("expected ready:true")
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	for _, c := range resp.Checks {
		if !c.OK || c.Error != "" {
			t.Errorf("check %q: expected clean pass, got ok=%v error=%q", c.Name, c.OK, c.Error)
		}
	}
}

func Test_HandleReady_FailingDependencyReturns503(t *testing.T) {
	t.Parallel()

	w, resp := probeReady(t,
		&fakePinger{name: "llm"},
		&fakePinger{name: "checkpoints", err: errors.New("database is locked")},
	)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if resp.Ready {
		t.Error("expected ready:false")
	}

	// The healthy probe still reports, with per-check detail on the failure.
	byName := map[string]readyCheck{}
	for _, c := range resp.Checks {
		byName[c.Name] = c
	}
	if c := byName["llm"]; !c.OK {
		t.Errorf("llm check: expected ok:true")
	}
	if c := byName["checkpoints"]; c.OK || c.Error == "" {
		t.Errorf("checkpoints check: expected failure with message, got ok=%v error=%q", c.OK, c.Error)
	}
}

func Test_HandleReady_ContentTypeOnFailure(t *testing.T) {
	t.Parallel()

	w, _ := probeReady(t, &fakePinger{name: "llm", err: errors.New("down")})
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
}
