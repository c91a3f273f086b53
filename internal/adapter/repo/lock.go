package repo

import (
	"context"
	"strconv"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// KVLocker implements domain.Locker with set-if-absent keys.
type KVLocker struct {
	kv  domain.KeyValueStore
	now func() time.Time
}

func NewKVLocker(kv domain.KeyValueStore) *KVLocker {
	return &KVLocker{kv: kv, now: time.Now}
}

// Acquire reports true when the caller now holds key for ttl.
func (l *KVLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	stamp := strconv.FormatInt(l.now().UnixMilli(), 10)
	return l.kv.SetNX(ctx, key, []byte(stamp), ttl)
}

func (l *KVLocker) Release(ctx context.Context, key string) error {
	return l.kv.Delete(ctx, key)
}

var _ domain.Locker = (*KVLocker)(nil)
