package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dunamismax/pixelshift/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.Job
	usage []domain.UsageLog
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.Job, error) {
	var out domain.Job
	err := s.update(id, func(job *domain.Job) {
		job.Status = status
		out = *job
	})
	return out, err
}

// UpdateProgress ignores updates that would move progress backwards.
func (s *MemoryJobStore) UpdateProgress(_ context.Context, id string, percent float64, message string) error {
	return s.update(id, func(job *domain.Job) {
		if percent < job.Progress {
			return
		}
		job.Progress = percent
		job.ProgressMessage = message
	})
}

func (s *MemoryJobStore) SetOutputs(_ context.Context, id string, outputs []domain.JobOutput) error {
	return s.update(id, func(job *domain.Job) {
		job.Outputs = append([]domain.JobOutput(nil), outputs...)
		job.Error = ""
	})
}

func (s *MemoryJobStore) SetError(_ context.Context, id, message string) error {
	return s.update(id, func(job *domain.Job) {
		job.Error = message
	})
}

func (s *MemoryJobStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

func (s *MemoryJobStore) UsageLogs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.UsageLog(nil), s.usage...)
}

func (s *MemoryJobStore) update(id string, fn func(job *domain.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return nil
}
