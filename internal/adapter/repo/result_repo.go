package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// ResultStore keeps the final render output under its own TTL-bound key.
type ResultStore struct {
	kv  domain.KeyValueStore
	ttl time.Duration
}

func NewResultStore(kv domain.KeyValueStore, ttl time.Duration) *ResultStore {
	return &ResultStore{kv: kv, ttl: ttl}
}

// Save overwrites any previous result.
func (s *ResultStore) Save(ctx context.Context, jobID string, result domain.FinalResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.kv.Set(ctx, finalKey(jobID), raw, s.ttl)
}

func (s *ResultStore) Get(ctx context.Context, jobID string) (*domain.FinalResult, error) {
	raw, err := s.kv.Get(ctx, finalKey(jobID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("result %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, err
	}
	var result domain.FinalResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, domain.Persistence("decode result", err)
	}
	return &result, nil
}

var _ domain.ResultRepository = (*ResultStore)(nil)
