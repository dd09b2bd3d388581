package web

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Dataset.Path = t.TempDir()
	cfg.Gallery.Dir = t.TempDir()
	cfg.Web.AllowedOrigins = []string{"https://gallery.example.com"}

	registry := session.NewRegistry(cfg.Gallery.Dir, session.WithDim(cfg.Embedding.Dim))
	extractor := dataset.ExtractorFunc(func(context.Context, image.Image) ([]dataset.Face, error) {
		return nil, nil
	})
	return NewServer(cfg, registry, extractor)
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/api/v1/health", http.StatusOK},
		{"GET", "/api/v1/config", http.StatusOK},
		{"GET", "/api/v1/sections/embeddings/identities", http.StatusOK},
		{"GET", "/api/v1/sections/embeddings/lookalikes", http.StatusOK},
		{"GET", "/api/v1/sections/embeddings/lookalikes?threshold=7", http.StatusBadRequest},
		{"DELETE", "/api/v1/sections/embeddings/identities/nobody", http.StatusNotFound},
		{"GET", "/api/v1/sync/unknown", http.StatusNotFound},
		{"GET", "/api/v1/does-not-exist", http.StatusNotFound},
		{"PUT", "/api/v1/config", http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			recorder := httptest.NewRecorder()

			s.Router().ServeHTTP(recorder, req)

			if recorder.Code != tc.status {
				t.Errorf("expected status %d, got %d\nBody: %s", tc.status, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestServer_Middleware(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "https://gallery.example.com")
	recorder := httptest.NewRecorder()

	s.Router().ServeHTTP(recorder, req)

	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://gallery.example.com" {
		t.Errorf("expected CORS header for allowed origin, got %q", got)
	}
	if got := recorder.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff header, got %q", got)
	}
}

func TestServer_NotFoundIsJSON(t *testing.T) {
	s := newTestServer(t)

	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/nowhere", nil))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"error"`) {
		t.Errorf("expected JSON error body, got %q", recorder.Body.String())
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := newTestServer(t)

	if _, err := s.registry.Get(context.Background(), "family"); err != nil {
		t.Fatal(err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
