package domain

import (
	"context"
	"time"
)

// KeyValueStore is the persistent keyed store every component coordinates
// through. Missing or expired keys report ErrNotFound; driver failures wrap
// ErrPersistence.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes only when key is absent and reports whether it wrote.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// SetXX writes only when key is present and reports whether it wrote.
	SetXX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// WorkQueue carries work items between processes.
type WorkQueue interface {
	Push(ctx context.Context, queue string, value []byte) error
	// Pop waits up to wait for an item; ErrNotFound means the queue stayed empty.
	Pop(ctx context.Context, queue string, wait time.Duration) ([]byte, error)
}

// Store is a keyed store that also carries work queues.
type Store interface {
	KeyValueStore
	WorkQueue
}

// JobRepository persists job records.
type JobRepository interface {
	Create(ctx context.Context, spec NewJobSpec) (*Job, error)
	Get(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, jobID string, mutate func(*Job) error) (*Job, error)
}

// PreviewRepository persists the immutable preview set of a job.
type PreviewRepository interface {
	Save(ctx context.Context, jobID string, previews []Preview) ([]Preview, error)
	List(ctx context.Context, jobID string) ([]Preview, error)
	// Touch renews the set's expiry without changing it.
	Touch(ctx context.Context, jobID string) error
}

// PickRepository tracks the indices a human selected.
type PickRepository interface {
	Toggle(ctx context.Context, jobID string, index int) (int, error)
	SetBulk(ctx context.Context, jobID string, indices []int, targetCount int) ([]int, error)
	List(ctx context.Context, jobID string) ([]int, error)
}

// ResultRepository persists the final render result.
type ResultRepository interface {
	Save(ctx context.Context, jobID string, result FinalResult) error
	Get(ctx context.Context, jobID string) (*FinalResult, error)
}

// Locker is a set-if-absent lock with its own expiry.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
