package kvstore

import (
	"context"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/sqlinline"
)

// noExpiry stands in for "never expires" since expires_at is not nullable.
const noExpiry = 100 * 365 * 24 * time.Hour

// Postgres implements domain.Store on two tables: kv_entries for keys and
// kv_queue for work items claimed with FOR UPDATE SKIP LOCKED.
type Postgres struct {
	sql          infra.SQLExecutor
	pollInterval time.Duration
}

// NewPostgres builds the store on top of a marker-checked executor.
func NewPostgres(sql infra.SQLExecutor) *Postgres {
	return &Postgres{sql: sql, pollInterval: 500 * time.Millisecond}
}

// Migrate creates the tables when missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateKVEntries, sqlinline.QCreateKVEntriesExpiryIndex, sqlinline.QCreateKVQueue} {
		if _, err := s.sql.Exec(ctx, q); err != nil {
			return domain.Persistence("postgres migrate", err)
		}
	}
	return nil
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = noExpiry
	}
	return ttl.Milliseconds()
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.sql.QueryRow(ctx, sqlinline.QKVGet, key).Scan(&value); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.Persistence("postgres get", err)
	}
	return value, nil
}

func (s *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QKVSet, key, value, ttlMillis(ttl)); err != nil {
		return domain.Persistence("postgres set", err)
	}
	return nil
}

func (s *Postgres) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QKVSetNX, key, value, ttlMillis(ttl))
	if err != nil {
		return false, domain.Persistence("postgres setnx", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) SetXX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QKVSetXX, key, value, ttlMillis(ttl))
	if err != nil {
		return false, domain.Persistence("postgres setxx", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QKVDelete, key); err != nil {
		return domain.Persistence("postgres delete", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	var one int
	if err := s.sql.QueryRow(ctx, sqlinline.QPing).Scan(&one); err != nil {
		return domain.Persistence("postgres ping", err)
	}
	return nil
}

func (s *Postgres) Push(ctx context.Context, queue string, value []byte) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QQueuePush, queue, value); err != nil {
		return domain.Persistence("postgres push", err)
	}
	return nil
}

// Pop claims the oldest item, polling until wait elapses.
func (s *Postgres) Pop(ctx context.Context, queue string, wait time.Duration) ([]byte, error) {
	deadline := time.Now().Add(wait)
	for {
		var value []byte
		err := s.sql.QueryRow(ctx, sqlinline.QQueuePop, queue).Scan(&value)
		if err == nil {
			return value, nil
		}
		if !infra.IsNoRows(err) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, domain.Persistence("postgres pop", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, domain.ErrNotFound
		}
		sleep := s.pollInterval
		if remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// PurgeExpired deletes rows whose TTL has passed and returns how many.
func (s *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QKVPurgeExpired)
	if err != nil {
		return 0, domain.Persistence("postgres purge", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.Store = (*Postgres)(nil)
