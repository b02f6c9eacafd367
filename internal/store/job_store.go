// Package store holds the in-memory job registry. It is the only owner of job
// records: callers get copies and mutate through Update, which enforces the
// status state machine and monotonic progress.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ytget/yt-downloader-api/internal/apperr"
	"github.com/ytget/yt-downloader-api/internal/model"
)

var (
	// ErrJobExists is returned by Create for a duplicate id
	ErrJobExists = errors.New("job already exists")
	// ErrJobFinished is returned by Update once a job is terminal
	ErrJobFinished = errors.New("job already finished")
)

// JobStore is a mutex guarded map of job id to job
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	now  func() time.Time
}

// NewJobStore creates an empty registry
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*model.Job),
		now:  time.Now,
	}
}

// SetClock replaces the time source used for CompletedAt
func (s *JobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create registers a new job
func (s *JobStore) Create(job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	if job.Status == "" {
		job.Status = model.StatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	s.jobs[job.ID] = &job
	return nil
}

// Get returns a snapshot of the job
func (s *JobStore) Get(id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return model.Job{}, notFound(id)
	}
	return *job, nil
}

// GetAll returns snapshots of every job
func (s *JobStore) GetAll() []model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// Update applies upd atomically and returns the resulting snapshot.
// Progress only moves forward; a completed job must carry a result and
// reports 100.
func (s *JobStore) Update(id string, upd model.JobUpdate) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return model.Job{}, notFound(id)
	}
	if job.Status.IsFinished() {
		return *job, fmt.Errorf("%w: %s is %s", ErrJobFinished, id, job.Status)
	}

	next := *job
	if upd.Title != nil {
		next.Title = *upd.Title
	}
	if upd.ResultRef != nil {
		next.ResultRef = *upd.ResultRef
	}
	if upd.Progress != nil {
		p := min(max(*upd.Progress, 0), 100)
		if p > next.Progress {
			next.Progress = p
		}
	}

	switch {
	case upd.Failure != nil:
		next.Status = model.StatusFailed
		next.ErrorKind = upd.Failure.Kind
		next.ErrorDetail = upd.Failure.Detail
		next.ResultRef = ""
		next.CompletedAt = s.now()
	case upd.Status != nil && *upd.Status != job.Status:
		if err := model.ValidateTransition(job.Status, *upd.Status); err != nil {
			return *job, err
		}
		next.Status = *upd.Status
		switch next.Status {
		case model.StatusCompleted:
			if next.ResultRef == "" {
				return *job, fmt.Errorf("job %s cannot complete without a result", id)
			}
			next.Progress = 100
			next.CompletedAt = s.now()
		case model.StatusFailed:
			next.CompletedAt = s.now()
		}
	}

	*job = next
	return next, nil
}

// Evict removes a job and returns its last snapshot
func (s *JobStore) Evict(id string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return model.Job{}, false
	}
	delete(s.jobs, id)
	return *job, true
}

// Expired returns terminal jobs that finished before cutoff
func (s *JobStore) Expired(cutoff time.Time) []model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Job
	for _, job := range s.jobs {
		if job.IsExpired(cutoff) {
			out = append(out, *job)
		}
	}
	return out
}

// ActiveIDs returns the ids of jobs that have not reached a terminal state
func (s *JobStore) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, job := range s.jobs {
		if !job.Status.IsFinished() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of stored jobs
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func notFound(id string) error {
	return apperr.New(apperr.KindNotFound, "store", fmt.Sprintf("job %s not found", id))
}
