package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

const maxIDAttempts = 3

// JobStore implements domain.JobRepository on the keyed store. Every write
// refreshes the TTL so a progressing job does not expire mid-flight.
type JobStore struct {
	kv    domain.KeyValueStore
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// NewJobStore creates a job store whose records live for ttl after their last write.
func NewJobStore(kv domain.KeyValueStore, ttl time.Duration) *JobStore {
	return &JobStore{kv: kv, ttl: ttl, now: time.Now, newID: uuid.NewString}
}

// Create allocates a fresh id and writes the initial creating record.
func (s *JobStore) Create(ctx context.Context, spec domain.NewJobSpec) (*domain.Job, error) {
	now := s.now().UTC()
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		job := &domain.Job{
			ID:           s.newID(),
			Prompt:       spec.Prompt,
			TargetCount:  spec.TargetCount,
			RequesterRef: spec.RequesterRef,
			State:        domain.StateCreating,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		raw, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("encode job: %w", err)
		}
		ok, err := s.kv.SetNX(ctx, jobKey(job.ID), raw, s.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return job, nil
		}
	}
	return nil, domain.Persistence("create job", errors.New("could not allocate a unique job id"))
}

// Get loads a job record.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if jobID == "" {
		return nil, domain.Invalid("job_id", "is required")
	}
	raw, err := s.kv.Get(ctx, jobKey(jobID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, domain.Persistence("decode job", err)
	}
	return &job, nil
}

// Update loads the job, applies mutate and writes it back only if the record
// still exists. A mutate error aborts without writing.
func (s *JobStore) Update(ctx context.Context, jobID string, mutate func(*domain.Job) error) (*domain.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	ok, err := s.kv.SetXX(ctx, jobKey(jobID), raw, s.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job %s expired during update: %w", jobID, domain.ErrNotFound)
	}
	return job, nil
}

var _ domain.JobRepository = (*JobStore)(nil)
