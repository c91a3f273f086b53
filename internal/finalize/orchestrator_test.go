package finalize

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/kvstore"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/repo"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/providers/render"
)

type stubDispatcher struct {
	mu       sync.Mutex
	requests []render.Request
	err      error
}

func (d *stubDispatcher) Dispatch(_ context.Context, req render.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return d.err
}

func (d *stubDispatcher) calls() []render.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.requests)
}

type fixture struct {
	kv         *kvstore.Memory
	stores     *repo.Stores
	dispatcher *stubDispatcher
	orch       *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := kvstore.NewMemory()
	stores := repo.NewStores(kv, time.Hour)
	dispatcher := &stubDispatcher{}
	orch := New(Deps{
		Jobs:       stores.Jobs,
		Previews:   stores.Previews,
		Picks:      stores.Picks,
		Results:    stores.Results,
		Locker:     stores.Locker,
		Dispatcher: dispatcher,
	}, Options{CallbackURL: "https://api.example/v1/callbacks/render"})
	return &fixture{kv: kv, stores: stores, dispatcher: dispatcher, orch: orch}
}

// readyJob creates a job in preview_ready with n previews.
func (f *fixture) readyJob(t *testing.T, n int) *domain.Job {
	t.Helper()
	ctx := context.Background()
	job, err := f.stores.Jobs.Create(ctx, domain.NewJobSpec{
		Prompt:      domain.Prompt{Subject: "detective", Theme: "rainy night", Style: "noir"},
		TargetCount: 7,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	previews := make([]domain.Preview, 0, n)
	for i := 1; i <= n; i++ {
		previews = append(previews, domain.Preview{Index: i, URL: fmt.Sprintf("https://img.example/%d.jpg", i)})
	}
	if _, err := f.stores.Previews.Save(ctx, job.ID, previews); err != nil {
		t.Fatalf("Save previews: %v", err)
	}
	job, err = f.stores.Jobs.Update(ctx, job.ID, func(j *domain.Job) error {
		return j.Advance(domain.StatePreviewReady)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return job
}

func TestFinalizeDispatchesOnceAndAbsorbsDuplicates(t *testing.T) {
	f := newFixture(t)
	job := f.readyJob(t, 15)
	ctx := context.Background()
	picks := []int{1, 3, 5, 7, 9, 11, 13}

	outcome, err := f.orch.Finalize(ctx, Request{JobID: job.ID, Picks: picks, WantCaption: true})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if outcome.State != domain.StateFinalizing || outcome.Duplicate || !slices.Equal(outcome.Picks, picks) {
		t.Fatalf("outcome = %+v", outcome)
	}

	again, err := f.orch.Finalize(ctx, Request{JobID: job.ID, Picks: []int{2, 4}})
	if err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if !again.Duplicate || again.State != domain.StateFinalizing || again.Reason != ReasonInFlight {
		t.Fatalf("second outcome = %+v", again)
	}
	if !slices.Equal(again.Picks, picks) {
		t.Fatalf("duplicate picks = %v, want stored %v", again.Picks, picks)
	}

	f.orch.Wait()
	calls := f.dispatcher.calls()
	if len(calls) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(calls))
	}
	req := calls[0]
	if req.JobID != job.ID || !req.WantCaption || req.CallbackURL == "" || len(req.Selected) != 7 {
		t.Fatalf("render request = %+v", req)
	}
	if req.Selected[1].Index != 3 || req.Selected[1].URL != "https://img.example/3.jpg" {
		t.Fatalf("selection = %+v", req.Selected[1])
	}

	stored, err := f.stores.Jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != domain.StateFinalizing || stored.FinalizeRequestedAt == nil || !stored.WantCaption {
		t.Fatalf("stored job = %+v", stored)
	}
}

func TestFinalizeConcurrentCallsDispatchOnce(t *testing.T) {
	f := newFixture(t)
	job := f.readyJob(t, 10)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		duplicates int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.orch.Finalize(context.Background(), Request{JobID: job.ID, Picks: []int{1, 2}})
			if err != nil {
				t.Errorf("Finalize: %v", err)
				return
			}
			if outcome.State != domain.StateFinalizing {
				t.Errorf("outcome = %+v, want state finalizing", outcome)
			}
			if outcome.Duplicate {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	f.orch.Wait()

	if got := len(f.dispatcher.calls()); got != 1 {
		t.Fatalf("dispatches = %d, want 1", got)
	}
	if duplicates != 15 {
		t.Fatalf("duplicates = %d, want 15", duplicates)
	}
}

func TestFinalizeDuplicateBeforeHolderUpdatesReportsFinalizing(t *testing.T) {
	f := newFixture(t)
	job := f.readyJob(t, 5)
	ctx := context.Background()

	ok, err := f.stores.Locker.Acquire(ctx, repo.FinalizeLockKey(job.ID), time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}

	outcome, err := f.orch.Finalize(ctx, Request{JobID: job.ID, Picks: []int{1}})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !outcome.Duplicate || outcome.State != domain.StateFinalizing {
		t.Fatalf("outcome = %+v, want duplicate in finalizing", outcome)
	}
	f.orch.Wait()
	if got := len(f.dispatcher.calls()); got != 0 {
		t.Fatalf("dispatches = %d, want 0", got)
	}
	stored, err := f.stores.Jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != domain.StatePreviewReady {
		t.Fatalf("stored state = %s, want preview_ready", stored.State)
	}
}

func TestFinalizeNeverForwardsOutOfRangePicks(t *testing.T) {
	f := newFixture(t)
	job := f.readyJob(t, 5)

	outcome, err := f.orch.Finalize(context.Background(), Request{JobID: job.ID, Picks: []int{0, 6, 2, 99, 2, 5, -1}})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	f.orch.Wait()
	if !slices.Equal(outcome.Picks, []int{2, 5}) {
		t.Fatalf("picks = %v, want [2 5]", outcome.Picks)
	}
	for _, sel := range f.dispatcher.calls()[0].Selected {
		if sel.Index < 1 || sel.Index > 5 {
			t.Fatalf("forwarded out-of-range index %d", sel.Index)
		}
	}
}

func TestFinalizeUsesStoredPicks(t *testing.T) {
	f := newFixture(t)
	job := f.readyJob(t, 8)
	ctx := context.Background()
	for _, idx := range []int{4, 2} {
		if _, err := f.stores.Picks.Toggle(ctx, job.ID, idx); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
	}
	outcome, err := f.orch.Finalize(ctx, Request{JobID: job.ID})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	f.orch.Wait()
	if !slices.Equal(outcome.Picks, []int{2, 4}) {
		t.Fatalf("picks = %v, want [2 4]", outcome.Picks)
	}
}

func TestFinalizeRejectionsReleaseLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.stores.Jobs.Create(ctx, domain.NewJobSpec{Prompt: domain.Prompt{Subject: "s", Theme: "t"}, TargetCount: 3})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.stores.Jobs.Update(ctx, job.ID, func(j *domain.Job) error { return j.Advance(domain.StatePreviewReady) }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := f.orch.Finalize(ctx, Request{JobID: job.ID, Picks: []int{1}}); !errors.Is(err, domain.ErrNoPreviews) {
		t.Fatalf("error = %v, want ErrNoPreviews", err)
	}
	acquired, err := f.stores.Locker.Acquire(ctx, repo.FinalizeLockKey(job.ID), time.Minute)
	if err != nil || !acquired {
		t.Fatalf("lock still held after rejection: acquired=%v err=%v", acquired, err)
	}

	ready := f.readyJob(t, 3)
	if _, err := f.orch.Finalize(ctx, Request{JobID: ready.ID, Picks: []int{7, 8}}); !errors.Is(err, domain.ErrNoValidPicks) {
		t.Fatalf("error = %v, want ErrNoValidPicks", err)
	}
	if _, err := f.orch.Finalize(ctx, Request{JobID: ready.ID, Picks: []int{1}}); err != nil {
		t.Fatalf("Finalize after rejection: %v", err)
	}
	f.orch.Wait()
}

func TestFinalizeWrongState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.stores.Jobs.Create(ctx, domain.NewJobSpec{Prompt: domain.Prompt{Subject: "s", Theme: "t"}, TargetCount: 3})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = f.orch.Finalize(ctx, Request{JobID: job.ID, Picks: []int{1}})
	var stateErr *domain.StateConflictError
	if !errors.As(err, &stateErr) || stateErr.State != domain.StateCreating {
		t.Fatalf("error = %v, want StateConflictError in creating", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
	if _, err := f.orch.Finalize(ctx, Request{JobID: "missing"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestFinalizeDispatchFailureLeavesJobFinalizing(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = fmt.Errorf("render: status 500: %w", domain.ErrUpstream)
	job := f.readyJob(t, 4)

	if _, err := f.orch.Finalize(context.Background(), Request{JobID: job.ID, Picks: []int{1, 2}}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	f.orch.Wait()
	stored, err := f.stores.Jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != domain.StateFinalizing {
		t.Fatalf("state = %s, want finalizing", stored.State)
	}
}

func TestHandleCallbackCompletesJob(t *testing.T) {
	f := newFixture(t)
	job := f.readyJob(t, 15)
	ctx := context.Background()
	if _, err := f.orch.Finalize(ctx, Request{JobID: job.ID, Picks: []int{1, 3, 5, 7, 9, 11, 13}}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	f.orch.Wait()

	urls := []string{"https://cdn/1", "https://cdn/2", "https://cdn/3", "https://cdn/4", "https://cdn/5", "https://cdn/6", "https://cdn/7"}
	done, err := f.orch.HandleCallback(ctx, Callback{JobID: job.ID, URLs: append([]string{" "}, urls...), Caption: "noir nights"})
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if done.State != domain.StateDone || done.CompletedAt == nil {
		t.Fatalf("job = %+v", done)
	}
	result, err := f.stores.Results.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Results.Get: %v", err)
	}
	if !slices.Equal(result.URLs, urls) || result.Caption != "noir nights" {
		t.Fatalf("result = %+v", result)
	}

	// A duplicate callback is accepted and overwrites the result.
	if _, err := f.orch.HandleCallback(ctx, Callback{JobID: job.ID, URLs: urls[:1]}); err != nil {
		t.Fatalf("duplicate HandleCallback: %v", err)
	}
	result, _ = f.stores.Results.Get(ctx, job.ID)
	if len(result.URLs) != 1 {
		t.Fatalf("result after duplicate = %+v", result)
	}
}

func TestHandleCallbackRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := f.kv.Len()
	if _, err := f.orch.HandleCallback(ctx, Callback{JobID: "never-created", URLs: []string{"https://cdn/1"}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if after := f.kv.Len(); after != before {
		t.Fatalf("store keys = %d, want %d", after, before)
	}

	if _, err := f.orch.HandleCallback(ctx, Callback{URLs: []string{"https://cdn/1"}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	job := f.readyJob(t, 2)
	if _, err := f.orch.HandleCallback(ctx, Callback{JobID: job.ID}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for empty urls", err)
	}

	if _, err := f.stores.Jobs.Update(ctx, job.ID, func(j *domain.Job) error { return j.Fail("search failed") }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := f.orch.HandleCallback(ctx, Callback{JobID: job.ID, URLs: []string{"https://cdn/1"}}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestValidatePicks(t *testing.T) {
	tests := []struct {
		name      string
		requested []int
		previews  int
		target    int
		want      []int
	}{
		{name: "keeps order", requested: []int{5, 1, 3}, previews: 5, target: 7, want: []int{5, 1, 3}},
		{name: "drops out of range", requested: []int{0, -2, 6, 4}, previews: 5, target: 7, want: []int{4}},
		{name: "drops duplicates", requested: []int{2, 2, 3, 2}, previews: 5, target: 7, want: []int{2, 3}},
		{name: "truncates to target", requested: []int{1, 2, 3, 4}, previews: 5, target: 2, want: []int{1, 2}},
		{name: "zero target is unbounded", requested: []int{1, 2, 3}, previews: 5, target: 0, want: []int{1, 2, 3}},
		{name: "empty", requested: nil, previews: 5, target: 3, want: []int{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidatePicks(tc.requested, tc.previews, tc.target)
			if !slices.Equal(got, tc.want) {
				t.Fatalf("ValidatePicks() = %v, want %v", got, tc.want)
			}
		})
	}
}
