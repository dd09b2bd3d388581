package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/facematch"
	"github.com/kozaktomas/face-gallery/internal/session"
)

// Embeddings handed out by the fake extractor, keyed by image width. Width 50 fails,
// any other width yields no face.
var faceByWidth = map[int][]float32{
	10: {1, 0, 0},
	20: {0, 1, 0},
	30: {0, 0, 1},
}

type fakeExtractor struct {
	calls atomic.Int32
}

func (f *fakeExtractor) Extract(_ context.Context, img image.Image) ([]dataset.Face, error) {
	f.calls.Add(1)
	width := img.Bounds().Dx()
	if width == 50 {
		return nil, errors.New("embedding server unavailable")
	}
	emb, ok := faceByWidth[width]
	if !ok {
		return nil, nil
	}
	return []dataset.Face{{Embedding: emb, BBox: facematch.BBox{1, 1, 5, 5}}}, nil
}

// testConfig creates a config backed by temporary dataset and gallery directories
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Dataset.Path = t.TempDir()
	cfg.Dataset.SyncConcurrency = 2
	cfg.Gallery.Dir = t.TempDir()
	cfg.Gallery.DefaultSection = "embeddings"
	cfg.Embedding.Dim = 3
	cfg.Recognition.ConfidenceThreshold = 0.7
	return cfg
}

// testRegistry creates a registry matching cfg
func testRegistry(cfg *config.Config) *session.Registry {
	return session.NewRegistry(cfg.Gallery.Dir, session.WithDim(cfg.Embedding.Dim))
}

// encodeJPEG returns a JPEG of the given width; the fake extractor keys on it
func encodeJPEG(t *testing.T, width int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, 4)), nil); err != nil {
		t.Fatalf("failed to encode JPEG: %v", err)
	}
	return buf.Bytes()
}

// writeDatasetPhoto stores a JPEG of the given width under root/identity/file
func writeDatasetPhoto(t *testing.T, root, identity, file string, width int) {
	t.Helper()
	dir := filepath.Join(root, identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), encodeJPEG(t, width), 0o644); err != nil {
		t.Fatal(err)
	}
}

// syncSection syncs a section directly through the registry
func syncSection(t *testing.T, cfg *config.Config, registry *session.Registry, section string) *session.Session {
	t.Helper()
	sess, err := registry.Get(context.Background(), section)
	if err != nil {
		t.Fatalf("failed to get section: %v", err)
	}
	if _, err := sess.Sync(context.Background(), cfg.Dataset.Path, newSynchronizer(cfg, &fakeExtractor{}, nil)); err != nil {
		t.Fatalf("failed to sync: %v", err)
	}
	return sess
}

type multipartFile struct {
	field    string
	filename string
	data     []byte
}

// multipartRequest builds a multipart/form-data request
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files []multipartFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
