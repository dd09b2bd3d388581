package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/session"
)

// SyncHandler runs dataset syncs as async jobs with SSE progress.
type SyncHandler struct {
	config     *config.Config
	registry   *session.Registry
	extractor  dataset.Extractor
	jobManager *JobManager
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(cfg *config.Config, registry *session.Registry, extractor dataset.Extractor, jobManager *JobManager) *SyncHandler {
	return &SyncHandler{
		config:     cfg,
		registry:   registry,
		extractor:  extractor,
		jobManager: jobManager,
	}
}

// SyncStartRequest represents a request to start a sync job.
// Force re-extracts identities that are already stored; Names limits a forced sync to
// those identities.
type SyncStartRequest struct {
	Section string   `json:"section"`
	Force   bool     `json:"force"`
	Names   []string `json:"names"`
}

// Start starts a sync job. An empty body syncs the default section.
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req SyncStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	section := resolveSection(h.config, req.Section)
	if _, err := h.registry.Get(r.Context(), section); err != nil {
		respondServiceError(w, err)
		return
	}

	job := h.jobManager.CreateJob(section, req.Force, req.Names)
	if job == nil {
		respondError(w, http.StatusConflict, "a sync job is already running for this section")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job.start(cancel)
	go h.runSyncJob(ctx, cancel, job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.GetStatus()),
	})
}

// Get returns the state of a sync job.
func (h *SyncHandler) Get(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// Events streams sync job events via SSE.
func (h *SyncHandler) Events(w http.ResponseWriter, r *http.Request) {
	lookup := func(id string) SSEJob {
		if job := h.jobManager.GetJob(id); job != nil {
			return job
		}
		return nil
	}
	initial := func(job SSEJob) any {
		return job.(*SyncJob).Snapshot()
	}
	streamSSEEvents(w, r, lookup, initial)
}

// Cancel cancels a sync job. Cancellation takes effect between identities and commits
// nothing.
func (h *SyncHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	if !job.Cancel() {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// runSyncJob executes the sync job in the background.
func (h *SyncHandler) runSyncJob(ctx context.Context, cancel context.CancelFunc, job *SyncJob) {
	defer cancel()

	sess, err := h.registry.Get(ctx, job.Section)
	if err != nil {
		job.finish(JobStatusFailed, nil, err.Error())
		return
	}

	syn := newSynchronizer(h.config, h.extractor, job.progress)

	var report *dataset.Report
	if job.Force {
		report, err = sess.Resync(ctx, h.config.Dataset.Path, syn, job.Names...)
	} else {
		report, err = sess.Sync(ctx, h.config.Dataset.Path, syn)
	}

	switch {
	case errors.Is(err, context.Canceled):
		log.Printf("Sync job %s for section %s cancelled", job.ID, sanitizeForLog(job.Section))
		job.finish(JobStatusCancelled, report, "")
	case err != nil:
		log.Printf("Sync job %s for section %s failed: %v", job.ID, sanitizeForLog(job.Section), err)
		job.finish(JobStatusFailed, report, err.Error())
	default:
		log.Printf("Sync job %s for section %s: %s", job.ID, sanitizeForLog(job.Section), report)
		job.finish(JobStatusCompleted, report, "")
	}
}
