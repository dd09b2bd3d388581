package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func TestNewConfigHandler(t *testing.T) {
	cfg := testConfig(t)
	registry := testRegistry(cfg)

	handler := NewConfigHandler(cfg, registry)

	if handler == nil {
		t.Fatal("expected non-nil handler")
		return
	}

	if handler.config != cfg {
		t.Error("expected handler to hold reference to config")
	}
}

func TestConfigHandler_Get_ReturnsJSON(t *testing.T) {
	cfg := testConfig(t)
	handler := NewConfigHandler(cfg, testRegistry(cfg))

	req := httptest.NewRequest("GET", "/api/v1/config", nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")
}

func TestConfigHandler_Get_ReportsSettings(t *testing.T) {
	cfg := testConfig(t)
	handler := NewConfigHandler(cfg, testRegistry(cfg))

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/config", nil))

	var result ConfigResponse
	parseJSONResponse(t, recorder, &result)

	if result.DefaultSection != "embeddings" {
		t.Errorf("expected default section 'embeddings', got '%s'", result.DefaultSection)
	}
	if result.ConfidenceThreshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", result.ConfidenceThreshold)
	}
	if result.EmbeddingDim != 3 {
		t.Errorf("expected embedding dim 3, got %d", result.EmbeddingDim)
	}
	if !slices.Equal(result.Extensions, cfg.Dataset.Extensions) {
		t.Errorf("expected extensions %v, got %v", cfg.Dataset.Extensions, result.Extensions)
	}
}

func TestConfigHandler_Get_ListsSections(t *testing.T) {
	cfg := testConfig(t)
	registry := testRegistry(cfg)
	writeDatasetPhoto(t, cfg.Dataset.Path, "alice", "1.jpg", 10)

	// One persisted section and one loaded but never saved.
	syncSection(t, cfg, registry, "family")
	if _, err := registry.Get(context.Background(), "work"); err != nil {
		t.Fatal(err)
	}

	handler := NewConfigHandler(cfg, registry)
	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/config", nil))

	var result ConfigResponse
	parseJSONResponse(t, recorder, &result)

	if !slices.Equal(result.Sections, []string{"family", "work"}) {
		t.Errorf("expected sections [family work], got %v", result.Sections)
	}
}
