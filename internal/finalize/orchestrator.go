// Package finalize converts a confirmed pick set into a single render
// dispatch and completes the job when the render collaborator calls back.
package finalize

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/repo"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/providers/render"
)

// ReasonInFlight marks an idempotent duplicate finalize.
const ReasonInFlight = "finalize already in flight"

// Deps are the stores and collaborators the orchestrator drives.
type Deps struct {
	Jobs       domain.JobRepository
	Previews   domain.PreviewRepository
	Picks      domain.PickRepository
	Results    domain.ResultRepository
	Locker     domain.Locker
	Dispatcher render.Dispatcher
}

// Options tunes the orchestrator.
type Options struct {
	LockTTL         time.Duration
	DispatchTimeout time.Duration
	CallbackURL     string
	Logger          *infra.Logger
}

// Request is a finalize call. Empty Picks means "use the stored pick set".
type Request struct {
	JobID       string
	Picks       []int
	WantCaption bool
}

// Outcome is returned to the caller right after the hand-off was scheduled,
// or when the call was absorbed as a duplicate.
type Outcome struct {
	JobID     string
	State     domain.JobState
	Picks     []int
	Duplicate bool
	Reason    string
}

// Callback is the render collaborator's answer.
type Callback struct {
	JobID   string
	URLs    []string
	Caption string
}

type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *infra.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger, now: time.Now}
}

// Finalize validates the picks, takes the per-job lock, moves the job to
// finalizing and schedules one render dispatch. It does not wait for the
// collaborator.
func (o *Orchestrator) Finalize(ctx context.Context, req Request) (*Outcome, error) {
	job, err := o.deps.Jobs.Get(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if !job.State.Finalizable() {
		return nil, &domain.StateConflictError{Op: "finalize", State: job.State}
	}

	lockKey := repo.FinalizeLockKey(job.ID)
	acquired, err := o.deps.Locker.Acquire(ctx, lockKey, o.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return o.duplicate(ctx, job), nil
	}

	outcome, renderReq, err := o.prepare(ctx, job, req)
	if err != nil {
		if relErr := o.deps.Locker.Release(context.WithoutCancel(ctx), lockKey); relErr != nil {
			o.logger.Error().Err(relErr).Str("job_id", job.ID).Msg("finalize: release lock failed")
		}
		return nil, err
	}
	o.dispatchAsync(ctx, renderReq)
	return outcome, nil
}

// duplicate reports the state the lock holder is moving the job to. The job
// is re-read because the holder may have updated it after our first load; a
// job still in a pickable state is reported as finalizing since the holder's
// update is in flight.
func (o *Orchestrator) duplicate(ctx context.Context, loaded *domain.Job) *Outcome {
	job := loaded
	if fresh, err := o.deps.Jobs.Get(ctx, loaded.ID); err == nil {
		job = fresh
	} else {
		o.logger.Warn().Err(err).Str("job_id", loaded.ID).Msg("finalize: re-read for duplicate failed")
	}
	state := job.State
	if state.Pickable() {
		state = domain.StateFinalizing
	}
	o.logger.Info().Str("job_id", job.ID).Str("state", string(state)).Msg("finalize: duplicate while locked")
	return &Outcome{JobID: job.ID, State: state, Picks: job.Picks, Duplicate: true, Reason: ReasonInFlight}
}

func (o *Orchestrator) prepare(ctx context.Context, job *domain.Job, req Request) (*Outcome, render.Request, error) {
	previews, err := o.deps.Previews.List(ctx, job.ID)
	if err != nil {
		return nil, render.Request{}, err
	}
	if len(previews) == 0 {
		return nil, render.Request{}, domain.ErrNoPreviews
	}
	if err := o.deps.Previews.Touch(ctx, job.ID); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("finalize: refreshing preview ttl failed")
	}

	requested := req.Picks
	if len(requested) == 0 && o.deps.Picks != nil {
		requested, err = o.deps.Picks.List(ctx, job.ID)
		if err != nil {
			return nil, render.Request{}, err
		}
	}
	selected := ValidatePicks(requested, len(previews), job.TargetCount)
	if len(selected) == 0 {
		return nil, render.Request{}, domain.ErrNoValidPicks
	}

	from := job.State
	now := o.now().UTC()
	updated, err := o.deps.Jobs.Update(ctx, job.ID, func(j *domain.Job) error {
		if !j.State.Finalizable() {
			return &domain.StateConflictError{Op: "finalize", State: j.State}
		}
		if err := j.Advance(domain.StateFinalizing); err != nil {
			return err
		}
		j.Picks = selected
		j.WantCaption = req.WantCaption
		j.FinalizeRequestedAt = &now
		return nil
	})
	if err != nil {
		return nil, render.Request{}, err
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("from", string(from)).
		Str("to", string(updated.State)).
		Ints("picks", selected).
		Msg("finalize: state changed")

	selections := make([]render.Selection, 0, len(selected))
	for _, idx := range selected {
		selections = append(selections, render.Selection{Index: idx, URL: previews[idx-1].URL})
	}
	renderReq := render.Request{
		JobID:       updated.ID,
		Subject:     updated.Prompt.Subject,
		Theme:       updated.Prompt.Theme,
		Style:       updated.Prompt.Style,
		TargetCount: updated.TargetCount,
		WantCaption: req.WantCaption,
		Picks:       selected,
		Selected:    selections,
		CallbackURL: o.opts.CallbackURL,
	}
	return &Outcome{JobID: updated.ID, State: updated.State, Picks: selected}, renderReq, nil
}

// dispatchAsync sends the hand-off on a context detached from the request.
// Failures are logged only; the job stays finalizing until a callback or a
// retried finalize after the lock expires.
func (o *Orchestrator) dispatchAsync(parent context.Context, req render.Request) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), o.opts.DispatchTimeout)
		defer cancel()
		start := o.now()
		if err := o.deps.Dispatcher.Dispatch(ctx, req); err != nil {
			o.logger.Error().Err(err).Str("job_id", req.JobID).Dur("took", time.Since(start)).Msg("finalize: render dispatch failed")
			return
		}
		o.logger.Info().Str("job_id", req.JobID).Dur("took", time.Since(start)).Msg("finalize: render dispatched")
	}()
}

// Wait blocks until every scheduled dispatch has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// HandleCallback stores the final result and marks the job done. Callbacks
// for jobs outside finalizing are accepted and overwrite earlier results;
// jobs in error stay terminal.
func (o *Orchestrator) HandleCallback(ctx context.Context, cb Callback) (*domain.Job, error) {
	if strings.TrimSpace(cb.JobID) == "" {
		return nil, domain.Invalid("job_id", "is required")
	}
	job, err := o.deps.Jobs.Get(ctx, cb.JobID)
	if err != nil {
		return nil, err
	}
	if job.State == domain.StateError {
		return nil, &domain.StateConflictError{Op: "accept callback", State: job.State}
	}
	urls := make([]string, 0, len(cb.URLs))
	for _, u := range cb.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, domain.Invalid("urls", "at least one final url is required")
	}
	if job.State != domain.StateFinalizing {
		o.logger.Warn().Str("job_id", job.ID).Str("state", string(job.State)).Msg("finalize: callback outside finalizing accepted")
	}

	now := o.now().UTC()
	if err := o.deps.Results.Save(ctx, job.ID, domain.FinalResult{URLs: urls, Caption: cb.Caption, CompletedAt: now}); err != nil {
		return nil, err
	}
	from := job.State
	updated, err := o.deps.Jobs.Update(ctx, job.ID, func(j *domain.Job) error {
		if err := j.Advance(domain.StateDone); err != nil {
			return err
		}
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("from", string(from)).
		Str("to", string(updated.State)).
		Int("urls", len(urls)).
		Msg("finalize: callback stored")
	return updated, nil
}
