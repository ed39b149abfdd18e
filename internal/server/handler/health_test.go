package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthCheckResponseShape(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler(logger, "gateway", time.Now().Add(-90*time.Second))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	uptime, ok := resp["uptime"].(float64)
	if !ok {
		t.Fatalf("uptime missing or not a number: %v", resp["uptime"])
	}
	if uptime < 90 {
		t.Errorf("uptime = %v, want >= 90", uptime)
	}
	if _, ok := resp["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
}
