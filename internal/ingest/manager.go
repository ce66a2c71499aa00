package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/formpair/backend/internal/models"
	"github.com/google/uuid"
)

// Status represents the ingest job processing status.
type Status string

const (
	StatusClassifying Status = "classifying"
	StatusExtracting  Status = "extracting"
	StatusPairing     Status = "pairing"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// Job represents an async drop-batch processing job.
type Job struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	SourceCount  int        `json:"sourceCount"`
	Status       Status     `json:"status"`
	Progress     float64    `json:"progress"`
	Accepted     int        `json:"accepted,omitempty"`
	Duplicates   int        `json:"duplicates,omitempty"`
	Archives     int        `json:"archives,omitempty"`
	NewPairKeys  []string   `json:"newPairKeys,omitempty"`
	SelectedKey  string     `json:"selectedKey,omitempty"`
	MemberErrors []string   `json:"memberErrors,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Notifier receives pairing events for the UI event stream. Implementations
// must not block.
type Notifier interface {
	PairsCreated(sessionID string, pairs []*models.FilePair)
	SelectionChanged(sessionID, key string)
}

// Manager handles async processing of drop batches. One batch runs to
// completion before its job reports complete; batches for the same session
// are additionally serialized by the matcher actor.
type Manager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	notifier Notifier
}

// NewManager creates a new ingest job manager. notifier may be nil.
func NewManager(notifier Notifier) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		notifier: notifier,
	}
}

// StartJob begins async processing of one drop batch against a session's
// pipeline.
func (m *Manager) StartJob(sessionID string, pipeline *Pipeline, sources []models.RawSource) *Job {
	job := &Job{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		SourceCount: len(sources),
		Status:      StatusClassifying,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	// Snapshot before the worker goroutine starts mutating the stored job.
	snapshot := *job
	go m.processJob(job, pipeline, sources)

	return &snapshot
}

// GetJob retrieves a snapshot of a job by ID. The worker goroutine keeps
// mutating the stored job under the manager lock; callers only ever see a
// detached copy.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	snapshot.NewPairKeys = append([]string(nil), job.NewPairKeys...)
	snapshot.MemberErrors = append([]string(nil), job.MemberErrors...)
	return &snapshot, true
}

func (m *Manager) processJob(job *Job, pipeline *Pipeline, sources []models.RawSource) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[IngestJob %s] PANIC recovered: %v\n", shortID(job.ID), r)
			m.markJobError(job, fmt.Sprintf("ingest panicked: %v", r))
		}
	}()

	fmt.Printf("[IngestJob %s] Processing %d sources for session %s\n",
		shortID(job.ID), len(sources), shortID(job.SessionID))

	result := pipeline.IngestWithProgress(sources, func(status Status, progress float64) {
		m.updateJobStatus(job, status, progress)
	})

	m.mu.Lock()
	job.Accepted = result.Accepted
	job.Duplicates = result.Duplicates
	job.Archives = result.ArchivesExpanded
	job.MemberErrors = result.MemberErrors
	job.SelectedKey = result.SelectedKey
	for _, p := range result.NewPairs {
		job.NewPairKeys = append(job.NewPairKeys, p.Key)
	}
	job.Status = StatusComplete
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	fmt.Printf("[IngestJob %s] Complete: %d accepted, %d duplicates, %d archives, %d new pairs\n",
		shortID(job.ID), result.Accepted, result.Duplicates, result.ArchivesExpanded, len(result.NewPairs))
	for _, msg := range result.MemberErrors {
		fmt.Printf("[IngestJob %s] Member error: %s\n", shortID(job.ID), msg)
	}

	if m.notifier != nil {
		if len(result.NewPairs) > 0 {
			m.notifier.PairsCreated(job.SessionID, result.NewPairs)
		}
		if result.SelectionChanged {
			m.notifier.SelectionChanged(job.SessionID, result.SelectedKey)
		}
	}
}

func (m *Manager) updateJobStatus(job *Job, status Status, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = status
	job.Progress = progress
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
}

// CleanupOldJobs removes finished jobs older than the specified duration.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status != StatusComplete && job.Status != StatusError {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
