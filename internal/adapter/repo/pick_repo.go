package repo

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// PickRegistry stores the selected preview indices under their own key so
// pick churn never rewrites the job record. It has no knowledge of the
// preview length and accepts any positive index.
//
// Toggle is a read-modify-write; picks are driven by a single human and are
// not protected against concurrent writers.
type PickRegistry struct {
	kv  domain.KeyValueStore
	ttl time.Duration
}

func NewPickRegistry(kv domain.KeyValueStore, ttl time.Duration) *PickRegistry {
	return &PickRegistry{kv: kv, ttl: ttl}
}

// Toggle flips membership of index and returns the new pick count.
func (r *PickRegistry) Toggle(ctx context.Context, jobID string, index int) (int, error) {
	if index < 1 {
		return 0, domain.Invalid("index", "must be a positive integer")
	}
	picks, err := r.List(ctx, jobID)
	if err != nil {
		return 0, err
	}
	next := make([]int, 0, len(picks)+1)
	found := false
	for _, p := range picks {
		if p == index {
			found = true
			continue
		}
		next = append(next, p)
	}
	if !found {
		next = append(next, index)
	}
	if err := r.write(ctx, jobID, next); err != nil {
		return 0, err
	}
	return len(next), nil
}

// SetBulk replaces the pick set with the distinct positive indices, in the
// order given, truncated to targetCount.
func (r *PickRegistry) SetBulk(ctx context.Context, jobID string, indices []int, targetCount int) ([]int, error) {
	picks := dedupPositive(indices)
	if targetCount > 0 && len(picks) > targetCount {
		picks = picks[:targetCount]
	}
	if err := r.write(ctx, jobID, picks); err != nil {
		return nil, err
	}
	return sortedCopy(picks), nil
}

// List returns the picks in ascending order.
func (r *PickRegistry) List(ctx context.Context, jobID string) ([]int, error) {
	raw, err := r.kv.Get(ctx, picksKey(jobID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []int{}, nil
		}
		return nil, err
	}
	var picks []int
	if err := json.Unmarshal(raw, &picks); err != nil {
		return nil, domain.Persistence("decode picks", err)
	}
	return sortedCopy(picks), nil
}

func (r *PickRegistry) write(ctx context.Context, jobID string, picks []int) error {
	raw, err := json.Marshal(sortedCopy(picks))
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, picksKey(jobID), raw, r.ttl)
}

func dedupPositive(indices []int) []int {
	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 1 {
			continue
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}

func sortedCopy(picks []int) []int {
	out := append([]int{}, picks...)
	sort.Ints(out)
	return out
}

var _ domain.PickRepository = (*PickRegistry)(nil)
