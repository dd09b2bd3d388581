package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/index"
	"github.com/kozaktomas/face-gallery/internal/matcher"
	"github.com/kozaktomas/face-gallery/internal/session"
	"github.com/kozaktomas/face-gallery/internal/vecmath"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidSection),
		errors.Is(err, matcher.ErrInvalidThreshold),
		errors.Is(err, matcher.ErrBoxMismatch),
		errors.Is(err, dataset.ErrInvalidIdentity),
		errors.Is(err, vecmath.ErrDegenerateVector):
		return http.StatusBadRequest
	case errors.Is(err, index.ErrDimensionMismatch),
		errors.Is(err, gallery.ErrDimensionMismatch),
		errors.Is(err, vecmath.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError sends err with the status statusForError picks for it.
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusForError(err), err.Error())
}

// resolveSection returns the requested section or the configured default.
func resolveSection(cfg *config.Config, requested string) string {
	if s := strings.TrimSpace(requested); s != "" {
		return s
	}
	return cfg.Gallery.DefaultSection
}

// newSynchronizer builds the dataset synchronizer described by cfg.
func newSynchronizer(cfg *config.Config, extractor dataset.Extractor, progress func(dataset.Event)) *dataset.Synchronizer {
	return &dataset.Synchronizer{
		Extractor:   extractor,
		Concurrency: cfg.Dataset.SyncConcurrency,
		Extensions:  cfg.Dataset.Extensions,
		Dim:         cfg.Embedding.Dim,
		Progress:    progress,
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
