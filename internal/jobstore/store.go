package jobstore

import (
	"context"
	"errors"
	"sync"

	"github.com/liqtrade/offer-extractor/constants"
	"github.com/liqtrade/offer-extractor/internal/entity"
)

// ErrTerminal is returned when a write targets a job that already reached
// done or failed. Terminal states are written exactly once; a retried task
// must not clobber a result written by an earlier attempt.
var ErrTerminal = errors.New("job already in terminal state")

// Job is the tracked state of one extraction job.
type Job struct {
	ID     string
	Status constants.JobStatus
	Result *entity.JobResult
	Error  string
}

// Store tracks job lifecycle state: queued -> processing -> done | failed.
// Implementations must allow concurrent reads while a single writer performs
// the terminal write.
type Store interface {
	Create(ctx context.Context, jobID string) error
	MarkProcessing(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID string, result *entity.JobResult) error
	Fail(ctx context.Context, jobID string, cause string) error
	Get(ctx context.Context, jobID string) (Job, bool, error)
}

// MemoryStore is the in-process Store. The reference deployment keeps job
// state ephemeral; a durable collaborator can replace this without changing
// the contract.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Create(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[jobID]; !exists {
		s.jobs[jobID] = Job{ID: jobID, Status: constants.JobStatusQueued}
	}
	return nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, exists := s.jobs[jobID]
	if exists && job.Status.IsTerminal() {
		return ErrTerminal
	}
	job.ID = jobID
	job.Status = constants.JobStatusProcessing
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, jobID string, result *entity.JobResult) error {
	return s.finish(jobID, Job{ID: jobID, Status: constants.JobStatusDone, Result: result})
}

func (s *MemoryStore) Fail(_ context.Context, jobID string, cause string) error {
	return s.finish(jobID, Job{ID: jobID, Status: constants.JobStatusFailed, Error: cause})
}

func (s *MemoryStore) finish(jobID string, next Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, exists := s.jobs[jobID]; exists && current.Status.IsTerminal() {
		return ErrTerminal
	}
	s.jobs[jobID] = next
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[jobID]
	return job, exists, nil
}
