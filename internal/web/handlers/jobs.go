package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-gallery/internal/constants"
	"github.com/kozaktomas/face-gallery/internal/dataset"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job event types.
const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventCancelled = "cancelled"
	EventJobError  = "job_error"
)

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
	TerminalEvent() (JobEvent, bool)
}

// SyncJob represents an async dataset sync of one section.
type SyncJob struct {
	EventBroadcaster

	ID                  string
	Section             string
	Force               bool
	Names               []string
	Status              JobStatus
	TotalIdentities     int
	ProcessedIdentities int
	Error               string
	StartedAt           time.Time
	CompletedAt         *time.Time
	Result              *dataset.Report
}

// SyncJobStatus is a point-in-time copy of a SyncJob, safe to encode.
type SyncJobStatus struct {
	ID                  string          `json:"id"`
	Section             string          `json:"section"`
	Force               bool            `json:"force"`
	Names               []string        `json:"names,omitempty"`
	Status              JobStatus       `json:"status"`
	Progress            int             `json:"progress"`
	TotalIdentities     int             `json:"total_identities"`
	ProcessedIdentities int             `json:"processed_identities"`
	Error               string          `json:"error,omitempty"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	Result              *dataset.Report `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *SyncJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Snapshot returns a copy of the job state.
func (j *SyncJob) Snapshot() SyncJobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()

	progress := 0
	if j.TotalIdentities > 0 {
		progress = j.ProcessedIdentities * 100 / j.TotalIdentities
	} else if j.Status == JobStatusCompleted {
		progress = 100
	}

	return SyncJobStatus{
		ID:                  j.ID,
		Section:             j.Section,
		Force:               j.Force,
		Names:               j.Names,
		Status:              j.Status,
		Progress:            progress,
		TotalIdentities:     j.TotalIdentities,
		ProcessedIdentities: j.ProcessedIdentities,
		Error:               j.Error,
		StartedAt:           j.StartedAt,
		CompletedAt:         j.CompletedAt,
		Result:              j.Result,
	}
}

// Cancel cancels a pending or running job. Finished jobs are left as they are.
func (j *SyncJob) Cancel() bool {
	j.mu.Lock()
	if isJobTerminal(j.Status) {
		j.mu.Unlock()
		return false
	}
	cancel := j.cancel
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// start marks the job running with its cancel function.
func (j *SyncJob) start(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.Status = JobStatusRunning
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: EventStarted, Message: "Sync started"})
}

// progress records a scan event and forwards it to listeners.
func (j *SyncJob) progress(e dataset.Event) {
	j.mu.Lock()
	switch e.Type {
	case dataset.EventStart:
		j.TotalIdentities = e.Total
	case dataset.EventIdentity:
		j.ProcessedIdentities = e.Current
	}
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: EventProgress, Data: e})
}

// finish moves the job to a terminal state and notifies listeners.
func (j *SyncJob) finish(status JobStatus, report *dataset.Report, errMsg string) {
	now := time.Now()
	j.mu.Lock()
	j.Status = status
	j.Result = report
	j.Error = errMsg
	j.CompletedAt = &now
	j.mu.Unlock()

	if event, ok := j.TerminalEvent(); ok {
		j.SendEvent(event)
	}
}

// TerminalEvent returns the event announcing the job's final state. It returns false
// while the job is pending or running.
func (j *SyncJob) TerminalEvent() (JobEvent, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	switch j.Status {
	case JobStatusCompleted:
		return JobEvent{Type: EventCompleted, Data: j.Result}, true
	case JobStatusCancelled:
		return JobEvent{Type: EventCancelled, Message: "Job cancelled by user"}, true
	case JobStatusFailed:
		return JobEvent{Type: EventJobError, Message: j.Error}, true
	default:
		return JobEvent{}, false
	}
}

// finishedBefore reports whether the job reached a terminal state before t.
func (j *SyncJob) finishedBefore(t time.Time) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.CompletedAt != nil && j.CompletedAt.Before(t)
}

// JobManager manages async sync jobs. Finished jobs are dropped once they are older
// than the retention period.
type JobManager struct {
	jobs      map[string]*SyncJob
	retention time.Duration
	mu        sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:      make(map[string]*SyncJob),
		retention: constants.JobRetention,
	}
}

// CreateJob registers a new pending sync job for section. It returns nil if another job
// for the same section is still pending or running.
func (m *JobManager) CreateJob(section string, force bool, names []string) *SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(time.Now())
	for _, job := range m.jobs {
		if job.Section == section && !isJobTerminal(job.GetStatus()) {
			return nil
		}
	}

	job := &SyncJob{
		ID:        uuid.New().String(),
		Section:   section,
		Force:     force,
		Names:     names,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *SyncJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// pruneLocked drops jobs that finished more than the retention period before now.
func (m *JobManager) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.retention)
	for id, job := range m.jobs {
		if job.finishedBefore(cutoff) {
			delete(m.jobs, id)
		}
	}
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*SyncJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*SyncJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CancelAll cancels every unfinished job. Used on shutdown.
func (m *JobManager) CancelAll() {
	for _, job := range m.ListJobs() {
		job.Cancel()
	}
}
