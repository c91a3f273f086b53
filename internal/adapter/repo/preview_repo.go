package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// PreviewStore keeps the ranked preview set of a job. The set is written once.
type PreviewStore struct {
	kv  domain.KeyValueStore
	ttl time.Duration
}

func NewPreviewStore(kv domain.KeyValueStore, ttl time.Duration) *PreviewStore {
	return &PreviewStore{kv: kv, ttl: ttl}
}

// Save writes previews unless a set already exists, and returns whichever set
// is stored afterwards.
func (s *PreviewStore) Save(ctx context.Context, jobID string, previews []domain.Preview) ([]domain.Preview, error) {
	raw, err := json.Marshal(previews)
	if err != nil {
		return nil, fmt.Errorf("encode previews: %w", err)
	}
	ok, err := s.kv.SetNX(ctx, previewsKey(jobID), raw, s.ttl)
	if err != nil {
		return nil, err
	}
	if ok {
		return previews, nil
	}
	return s.List(ctx, jobID)
}

// List returns the stored previews ordered by index; an absent set is empty.
func (s *PreviewStore) List(ctx context.Context, jobID string) ([]domain.Preview, error) {
	raw, err := s.kv.Get(ctx, previewsKey(jobID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.Preview{}, nil
		}
		return nil, err
	}
	var previews []domain.Preview
	if err := json.Unmarshal(raw, &previews); err != nil {
		return nil, domain.Persistence("decode previews", err)
	}
	return previews, nil
}

// Touch extends the preview set's TTL to match the job record, which is
// refreshed on every update. A missing set is left missing.
func (s *PreviewStore) Touch(ctx context.Context, jobID string) error {
	raw, err := s.kv.Get(ctx, previewsKey(jobID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = s.kv.SetXX(ctx, previewsKey(jobID), raw, s.ttl)
	return err
}

var _ domain.PreviewRepository = (*PreviewStore)(nil)
