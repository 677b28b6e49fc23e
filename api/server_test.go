package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veridex/veridex/config"
)

func testServer() *Server {
	return New(config.Config{}, log.New(io.Discard, "", 0))
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp messageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != "ok" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestHealthzRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow header %q, got %q", http.MethodGet, allow)
	}
}

func TestQueryRequiresQuestion(t *testing.T) {
	body := strings.NewReader(`{"question": "   "}`)
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueryRejectsUnknownFields(t *testing.T) {
	body := strings.NewReader(`{"question": "hi", "bogus": true}`)
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueryRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/query", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	body := strings.NewReader(`{"confirm": false}`)
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/clear", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIndexServesUI(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html content type, got %q", ct)
	}
}

func TestIndexUnknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBuildOptionsAppliesOverrides(t *testing.T) {
	cfg := config.Config{}
	cfg.Pipeline.TopK = 5
	cfg.Pipeline.RelevanceThreshold = 0.7
	cfg.Pipeline.ConsistencyThreshold = 7
	cfg.Pipeline.MaxCorrectionLoops = 2
	cfg.Pipeline.SelfCorrection = true

	s := New(cfg, log.New(io.Discard, "", 0))

	loops := 0
	disabled := false
	opts := s.buildOptions(queryRequest{
		TopK:                 10,
		ConsistencyThreshold: 8.5,
		MaxCorrectionLoops:   &loops,
		SelfCorrection:       &disabled,
	})

	if opts.TopK != 10 {
		t.Fatalf("expected top-k override 10, got %d", opts.TopK)
	}
	if opts.RelevanceThreshold != 0.7 {
		t.Fatalf("expected relevance threshold from config, got %v", opts.RelevanceThreshold)
	}
	if opts.ConsistencyThreshold != 8.5 {
		t.Fatalf("expected consistency threshold override, got %v", opts.ConsistencyThreshold)
	}
	if opts.MaxCorrectionLoops != 0 {
		t.Fatalf("expected max correction loops override 0, got %d", opts.MaxCorrectionLoops)
	}
	if opts.SelfCorrection {
		t.Fatal("expected self-correction disabled by override")
	}
}
