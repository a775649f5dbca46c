// Package jobs implements the in-memory job store: thread-safe status
// tracking for single and batch subtitle-generation jobs, plus the asynq
// dispatch queue that lets the scan endpoint hand off a scan without
// blocking the request.
//
// The store itself is a mutex-protected map, a clone-on-read so callers
// never observe (or mutate) the live record, and an atomic id counter. The
// asynq-backed scan dispatch queue is a separate concern, implemented in
// queue.go.
package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelkeep/reelkeep/internal/models"
)

// Store is the thread-safe in-memory job status tracker for both single and
// batch subtitle jobs.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*models.Job
	batches   map[string]*models.BatchJob
	idCounter uint64
}

// New creates an empty job store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*models.Job),
		batches: make(map[string]*models.BatchJob),
	}
}

func (s *Store) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddUint64(&s.idCounter, 1))
}

// ──────────────────── Single job lifecycle ────────────────────

// Create registers a new job in state pending and returns its id.
func (s *Store) Create() string {
	now := time.Now()
	job := &models.Job{
		ID:        s.nextID("job"),
		State:     models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job.ID
}

// Start transitions a pending job to processing.
func (s *Store) Start(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", id)
	}
	job.State = models.JobProcessing
	job.UpdatedAt = time.Now()
	return nil
}

// UpdateProgress records the job's current progress and an optional status
// message, leaving its state untouched.
func (s *Store) UpdateProgress(id string, pct float64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", id)
	}
	job.Progress = pct
	if message != "" {
		job.Message = message
	}
	job.UpdatedAt = time.Now()
	return nil
}

// Complete transitions the job to completed and records its result.
func (s *Store) Complete(id string, result interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", id)
	}
	job.State = models.JobCompleted
	job.Progress = 100
	job.Result = result
	job.UpdatedAt = time.Now()
	return nil
}

// Fail transitions the job to failed and records the error text.
func (s *Store) Fail(id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", id)
	}
	job.State = models.JobFailed
	if cause != nil {
		job.Error = cause.Error()
	}
	job.UpdatedAt = time.Now()
	return nil
}

// Cancel transitions a pending or processing job to cancelled. It is a
// no-op error for a job already in a terminal state.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", id)
	}
	if job.State != models.JobPending && job.State != models.JobProcessing {
		return fmt.Errorf("jobs: job %s is not cancellable from state %s", id, job.State)
	}
	job.State = models.JobCancelled
	job.UpdatedAt = time.Now()
	return nil
}

// Get returns a snapshot of the job, safe for the caller to read without
// racing further updates.
func (s *Store) Get(id string) (*models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	clone := *job
	return &clone, true
}

// IsCancelled reports whether a single job has been cancelled, for callers
// that poll mid-phase even though single cancellation is advisory.
func (s *Store) IsCancelled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return ok && job.State == models.JobCancelled
}

// ──────────────────── Batch job lifecycle ────────────────────

// CreateBatch registers a new batch job with the given expected total.
func (s *Store) CreateBatch(total int) string {
	now := time.Now()
	batch := &models.BatchJob{
		ID:        s.nextID("batch"),
		State:     models.JobProcessing,
		Total:     total,
		Errors:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.batches[batch.ID] = batch
	s.mu.Unlock()
	return batch.ID
}

// UpdateBatchProgress sets the number of items completed so far.
func (s *Store) UpdateBatchProgress(id string, completed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("jobs: unknown batch %s", id)
	}
	batch.Completed = completed
	batch.UpdatedAt = time.Now()
	return nil
}

// AddBatchError records a per-item failure without aborting the batch.
func (s *Store) AddBatchError(id, mediaID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("jobs: unknown batch %s", id)
	}
	batch.Errors[mediaID] = cause
	batch.Failed++
	batch.UpdatedAt = time.Now()
	return nil
}

// CompleteBatch sets the batch's final state: completed if every item
// succeeded, failed if every item failed, completed (partial) otherwise.
// A batch already cancelled stays cancelled — cancellation always wins.
func (s *Store) CompleteBatch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("jobs: unknown batch %s", id)
	}
	if batch.State == models.JobCancelled {
		return nil
	}
	switch {
	case batch.Total > 0 && batch.Failed == batch.Total:
		batch.State = models.JobFailed
	default:
		batch.State = models.JobCompleted
	}
	batch.UpdatedAt = time.Now()
	return nil
}

// CancelBatch marks the batch cancelled; IsBatchCancelled will report true
// from the next poll on.
func (s *Store) CancelBatch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("jobs: unknown batch %s", id)
	}
	if batch.State != models.JobPending && batch.State != models.JobProcessing {
		return fmt.Errorf("jobs: batch %s is not cancellable from state %s", id, batch.State)
	}
	batch.State = models.JobCancelled
	batch.UpdatedAt = time.Now()
	return nil
}

// IsBatchCancelled is polled at the top of each batch iteration so a
// cancellation request takes effect before the next item starts.
func (s *Store) IsBatchCancelled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	return ok && batch.State == models.JobCancelled
}

// GetBatch returns a snapshot of the batch job.
func (s *Store) GetBatch(id string) (*models.BatchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, false
	}
	clone := *batch
	clone.Errors = make(map[string]string, len(batch.Errors))
	for k, v := range batch.Errors {
		clone.Errors[k] = v
	}
	return &clone, true
}

// ──────────────────── Cleanup ────────────────────

// CleanupOldJobs removes terminal single and batch jobs whose last update is
// older than maxAge, returning the number removed. Nothing runs it on a
// schedule; jobs stay in the store until it is called.
func (s *Store) CleanupOldJobs(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, job := range s.jobs {
		if isTerminal(job.State) && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	for id, batch := range s.batches {
		if isTerminal(batch.State) && batch.UpdatedAt.Before(cutoff) {
			delete(s.batches, id)
			removed++
		}
	}
	return removed
}

func isTerminal(state models.JobState) bool {
	return state == models.JobCompleted || state == models.JobFailed || state == models.JobCancelled
}
