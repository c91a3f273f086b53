// Package worker drains the build-previews queue and runs the preview build
// for each job it pops.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/repo"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/jobs"
)

const (
	defaultPopWait     = 5 * time.Second
	errorBackoff       = 2 * time.Second
	defaultSweepPeriod = 10 * time.Minute
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
	maxRetryDelay      = time.Minute
	requeueTimeout     = 5 * time.Second
)

// Builder runs the preview build for one job. FailBuild records a build
// whose retries are exhausted.
type Builder interface {
	BuildPreviews(ctx context.Context, jobID string) error
	FailBuild(ctx context.Context, jobID, reason string) error
}

// Purger removes expired rows from backends without native expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Options struct {
	Concurrency int
	PopWait     time.Duration
	SweepPeriod time.Duration
	// MaxAttempts bounds builds per item; RetryDelay is the first backoff
	// step and doubles on each further failure.
	MaxAttempts int
	RetryDelay  time.Duration
	// Purger is optional.
	Purger Purger
	Logger *infra.Logger
}

type Worker struct {
	queue   domain.WorkQueue
	builder Builder
	opts    Options
	logger  *infra.Logger
}

func New(queue domain.WorkQueue, builder Builder, opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PopWait <= 0 {
		opts.PopWait = defaultPopWait
	}
	if opts.SweepPeriod <= 0 {
		opts.SweepPeriod = defaultSweepPeriod
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Worker{queue: queue, builder: builder, opts: opts, logger: logger}
}

// Run blocks until ctx ends. It returns ctx.Err() on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.opts.Concurrency).Msg("worker: started")
	g, gctx := errgroup.WithContext(ctx)
	for i := range w.opts.Concurrency {
		g.Go(func() error { return w.loop(gctx, i) })
	}
	if w.opts.Purger != nil {
		g.Go(func() error { return w.sweep(gctx) })
	}
	err := g.Wait()
	w.logger.Info().Msg("worker: stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, slot int) error {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("worker: processing failed")
			if !sleep(ctx, errorBackoff) {
				return ctx.Err()
			}
		}
	}
}

// ProcessOne pops at most one item and builds its previews. It reports
// whether an item was handled.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	raw, err := w.queue.Pop(ctx, repo.BuildPreviewsQueue(), w.opts.PopWait)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	var item jobs.WorkItem
	if err := json.Unmarshal(raw, &item); err != nil || item.JobID == "" {
		w.logger.Warn().Bytes("item", raw).Msg("worker: dropping malformed work item")
		return true, nil
	}
	log := w.logger.With().Str("job_id", item.JobID).Int("attempt", item.Attempt+1).Logger()
	if wait := time.Until(item.NotBefore); wait > 0 && !sleep(ctx, wait) {
		w.requeue(ctx, item)
		return true, ctx.Err()
	}
	start := time.Now()
	log.Info().Dur("queued_for", start.Sub(item.EnqueuedAt)).Msg("worker: picked job")
	err = w.builder.BuildPreviews(ctx, item.JobID)
	if err == nil {
		log.Info().Dur("took", time.Since(start)).Msg("worker: job handled")
		return true, nil
	}
	if ctx.Err() != nil {
		// Shutdown, not a failed attempt.
		w.requeue(ctx, item)
		return true, err
	}

	item.Attempt++
	if item.Attempt >= w.opts.MaxAttempts {
		log.Error().Err(err).Msg("worker: preview build retries exhausted")
		reason := fmt.Sprintf("preview build failed after %d attempts: %v", item.Attempt, err)
		if failErr := w.builder.FailBuild(context.WithoutCancel(ctx), item.JobID, reason); failErr != nil {
			log.Error().Err(failErr).Msg("worker: recording build failure failed")
		}
		return true, err
	}
	delay := w.retryDelay(item.Attempt)
	item.NotBefore = time.Now().Add(delay)
	log.Warn().Err(err).Dur("retry_in", delay).Msg("worker: preview build failed, retrying")
	w.requeue(ctx, item)
	return true, err
}

// retryDelay is RetryDelay * 2^(attempt-1), capped at maxRetryDelay.
func (w *Worker) retryDelay(attempt int) time.Duration {
	d := time.Duration(float64(w.opts.RetryDelay) * math.Pow(2, float64(attempt-1)))
	if d > maxRetryDelay || d <= 0 {
		return maxRetryDelay
	}
	return d
}

// requeue pushes item back on a context that survives shutdown.
func (w *Worker) requeue(parent context.Context, item jobs.WorkItem) {
	raw, err := json.Marshal(item)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", item.JobID).Msg("worker: encoding work item failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), requeueTimeout)
	defer cancel()
	if err := w.queue.Push(ctx, repo.BuildPreviewsQueue(), raw); err != nil {
		w.logger.Error().Err(err).Str("job_id", item.JobID).Msg("worker: requeue failed, item lost")
	}
}

func (w *Worker) sweep(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.opts.Purger.PurgeExpired(ctx)
			if err != nil {
				w.logger.Warn().Err(err).Msg("worker: purge expired failed")
				continue
			}
			if n > 0 {
				w.logger.Info().Int64("rows", n).Msg("worker: purged expired entries")
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
