package repo

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/kvstore"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

func newSpec() domain.NewJobSpec {
	return domain.NewJobSpec{
		Prompt:      domain.Prompt{Subject: "detective", Theme: "rainy night", Style: "noir"},
		TargetCount: 7,
	}
}

func TestJobStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(kvstore.NewMemory(), time.Hour)

	job, err := store.Create(ctx, newSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.State != domain.StateCreating || job.ID == "" {
		t.Fatalf("created job = %+v", job)
	}
	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Prompt != job.Prompt || got.TargetCount != 7 {
		t.Fatalf("Get = %+v, want %+v", got, job)
	}
}

func TestJobStoreIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(kvstore.NewMemory(), time.Hour)
	seen := map[string]bool{}
	for range 200 {
		job, err := store.Create(ctx, newSpec())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[job.ID] {
			t.Fatalf("duplicate id %s", job.ID)
		}
		seen[job.ID] = true
	}
}

func TestJobStoreRetriesOnIDCollision(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(kvstore.NewMemory(), time.Hour)
	ids := []string{"taken", "taken", "fresh"}
	store.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	if _, err := store.Create(ctx, newSpec()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	job, err := store.Create(ctx, newSpec())
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if job.ID != "fresh" {
		t.Fatalf("id = %q, want fresh", job.ID)
	}
}

func TestJobStoreGetMissing(t *testing.T) {
	store := NewJobStore(kvstore.NewMemory(), time.Hour)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Get(\"\") error = %v, want ErrValidation", err)
	}
}

func TestJobStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(kvstore.NewMemory(), time.Hour)
	job, _ := store.Create(ctx, newSpec())

	updated, err := store.Update(ctx, job.ID, func(j *domain.Job) error {
		return j.Advance(domain.StatePreviewReady)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.State != domain.StatePreviewReady {
		t.Fatalf("state = %s", updated.State)
	}

	_, err = store.Update(ctx, job.ID, func(j *domain.Job) error {
		return j.Advance(domain.StateCreating)
	})
	var stateErr *domain.StateConflictError
	if !errors.As(err, &stateErr) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("illegal move error = %v, want StateConflictError", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.State != domain.StatePreviewReady {
		t.Fatalf("rejected mutate was written: %s", got.State)
	}
}

func TestJobStoreUpdateAfterExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	mem := kvstore.NewMemory().WithClock(func() time.Time { return now })
	store := NewJobStore(mem, time.Minute)
	job, _ := store.Create(ctx, newSpec())
	now = now.Add(2 * time.Minute)

	_, err := store.Update(ctx, job.ID, func(j *domain.Job) error { return nil })
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Update error = %v, want ErrNotFound", err)
	}
}

func TestPreviewStoreWritesOnce(t *testing.T) {
	ctx := context.Background()
	store := NewPreviewStore(kvstore.NewMemory(), time.Hour)

	empty, err := store.List(ctx, "job")
	if err != nil || len(empty) != 0 {
		t.Fatalf("List before save = %v, %v", empty, err)
	}

	first := []domain.Preview{{Index: 1, URL: "https://a.example/1.jpg"}}
	second := []domain.Preview{{Index: 1, URL: "https://b.example/2.jpg"}}
	if _, err := store.Save(ctx, "job", first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	kept, err := store.Save(ctx, "job", second)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if kept[0].URL != first[0].URL {
		t.Fatalf("second Save replaced the set: %+v", kept)
	}
}

func TestPreviewStoreTouchExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	mem := kvstore.NewMemory().WithClock(func() time.Time { return now })
	store := NewPreviewStore(mem, time.Hour)
	if _, err := store.Save(ctx, "job", []domain.Preview{{Index: 1, URL: "https://a.example/1.jpg"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	now = now.Add(50 * time.Minute)
	if err := store.Touch(ctx, "job"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	now = now.Add(50 * time.Minute)
	got, err := store.List(ctx, "job")
	if err != nil || len(got) != 1 {
		t.Fatalf("List after touch = %v, %v; want the saved set", got, err)
	}

	now = now.Add(time.Hour)
	if got, _ := store.List(ctx, "job"); len(got) != 0 {
		t.Fatalf("List after expiry = %v, want empty", got)
	}
	if err := store.Touch(ctx, "job"); err != nil {
		t.Fatalf("Touch on expired set: %v", err)
	}
	if got, _ := store.List(ctx, "job"); len(got) != 0 {
		t.Fatalf("Touch revived an expired set: %v", got)
	}
}

func TestPickRegistryToggle(t *testing.T) {
	ctx := context.Background()
	reg := NewPickRegistry(kvstore.NewMemory(), time.Hour)

	for _, idx := range []int{13, 1, 5, 3, 11, 9, 7} {
		if _, err := reg.Toggle(ctx, "job", idx); err != nil {
			t.Fatalf("Toggle(%d): %v", idx, err)
		}
	}
	picks, err := reg.List(ctx, "job")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []int{1, 3, 5, 7, 9, 11, 13}
	if !slices.Equal(picks, want) {
		t.Fatalf("List = %v, want %v", picks, want)
	}

	n1, _ := reg.Toggle(ctx, "job", 4)
	n2, _ := reg.Toggle(ctx, "job", 4)
	if n1 != 8 || n2 != 7 {
		t.Fatalf("toggle counts = %d, %d; want 8, 7", n1, n2)
	}
	after, _ := reg.List(ctx, "job")
	if !slices.Equal(after, want) {
		t.Fatalf("double toggle changed picks: %v", after)
	}
}

func TestPickRegistryRejectsNonPositive(t *testing.T) {
	reg := NewPickRegistry(kvstore.NewMemory(), time.Hour)
	if _, err := reg.Toggle(context.Background(), "job", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Toggle(0) error = %v, want ErrValidation", err)
	}
}

func TestPickRegistrySetBulk(t *testing.T) {
	ctx := context.Background()
	reg := NewPickRegistry(kvstore.NewMemory(), time.Hour)
	got, err := reg.SetBulk(ctx, "job", []int{9, 2, 2, -1, 0, 4, 8, 1}, 3)
	if err != nil {
		t.Fatalf("SetBulk: %v", err)
	}
	if want := []int{2, 4, 9}; !slices.Equal(got, want) {
		t.Fatalf("SetBulk = %v, want %v", got, want)
	}
	listed, _ := reg.List(ctx, "job")
	if !slices.Equal(listed, got) {
		t.Fatalf("List = %v, want %v", listed, got)
	}
}

func TestResultStore(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore(kvstore.NewMemory(), time.Hour)
	if _, err := store.Get(ctx, "job"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get before save error = %v", err)
	}
	res := domain.FinalResult{URLs: []string{"https://cdn.example/1.png"}, Caption: "hi"}
	if err := store.Save(ctx, "job", res); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, "job")
	if err != nil || got.Caption != "hi" || len(got.URLs) != 1 {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestKVLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewKVLocker(kvstore.NewMemory())
	key := FinalizeLockKey("job")

	ok, err := locker.Acquire(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire = %v, %v", ok, err)
	}
	ok, _ = locker.Acquire(ctx, key, time.Minute)
	if ok {
		t.Fatal("second Acquire succeeded while held")
	}
	if err := locker.Release(ctx, key); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, _ = locker.Acquire(ctx, key, time.Minute)
	if !ok {
		t.Fatal("Acquire after Release failed")
	}
}
