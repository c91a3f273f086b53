package repo

import (
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// Stores groups every repository built over one keyed store.
type Stores struct {
	Jobs     *JobStore
	Previews *PreviewStore
	Picks    *PickRegistry
	Results  *ResultStore
	Locker   *KVLocker
}

// NewStores shares ttl across job, preview, pick and result keys so they
// expire together.
func NewStores(kv domain.KeyValueStore, ttl time.Duration) *Stores {
	return &Stores{
		Jobs:     NewJobStore(kv, ttl),
		Previews: NewPreviewStore(kv, ttl),
		Picks:    NewPickRegistry(kv, ttl),
		Results:  NewResultStore(kv, ttl),
		Locker:   NewKVLocker(kv),
	}
}
