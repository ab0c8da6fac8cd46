package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tubefetch/bot/internal/storage"
)

type stubStore struct {
	stats storage.Stats
	err   error
}

func (s stubStore) Put(ctx context.Context, sourcePath, objectName string) (string, error) {
	return "", errors.New("not implemented")
}

func (s stubStore) Delete(ctx context.Context, objectName string) bool { return false }

func (s stubStore) Statistics(ctx context.Context) (storage.Stats, error) {
	return s.stats, s.err
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	HealthHandler{}.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestHealthHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)

	HealthHandler{}.Handle(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestStorageStatsHandler(t *testing.T) {
	handler := StorageStatsHandler{Store: stubStore{stats: storage.Stats{TotalBytes: 2048, FileCount: 3}}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/storage/stats", nil)

	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var stats storage.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalBytes != 2048 || stats.FileCount != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestStorageStatsHandlerError(t *testing.T) {
	handler := StorageStatsHandler{Store: stubStore{err: errors.New("boom")}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/storage/stats", nil)

	handler.Handle(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestRegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Store:    stubStore{},
		Registry: prometheus.NewRegistry(),
	})

	for _, path := range []string{"/healthz", "/storage/stats", "/metrics"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		mux.ServeHTTP(rec, req)
		if rec.Code == http.StatusNotFound {
			t.Fatalf("route %s not registered", path)
		}
	}
}
