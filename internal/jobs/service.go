// Package jobs binds the stores, acquisition and ranking into the job
// lifecycle seen by callers: create, status, previews, picks, result, and the
// worker-side preview build.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/acquisition"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/repo"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/ranking"
)

// Acquirer is satisfied by *acquisition.Acquirer.
type Acquirer interface {
	Acquire(ctx context.Context, req acquisition.Request) (*acquisition.Result, error)
}

// Deps are the collaborators the service needs. Acquirer may be nil in
// processes that never build previews.
type Deps struct {
	Jobs     domain.JobRepository
	Previews domain.PreviewRepository
	Picks    domain.PickRepository
	Results  domain.ResultRepository
	Queue    domain.WorkQueue
	Acquirer Acquirer
}

// Options tunes the service.
type Options struct {
	DefaultTargetCount int
	Ranking            ranking.Options
	Logger             *infra.Logger
}

// WorkItem is the payload pushed on the build-previews queue. Attempt counts
// failed builds so far; a retried item is not processed before NotBefore.
type WorkItem struct {
	JobID      string    `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempt    int       `json:"attempt,omitempty"`
	NotBefore  time.Time `json:"not_before,omitempty"`
}

// CreateInput is a new job request.
type CreateInput struct {
	Subject      string
	Theme        string
	Style        string
	TargetCount  int
	RequesterRef string
}

// Status is the polling view of a job.
type Status struct {
	JobID          string          `json:"job_id"`
	State          domain.JobState `json:"state"`
	CandidateCount int             `json:"candidate_count"`
	RawCount       int             `json:"raw_count"`
	Profile        string          `json:"profile,omitempty"`
	PickCount      int             `json:"pick_count"`
	TargetCount    int             `json:"target_count"`
	Error          string          `json:"error,omitempty"`
}

type Service struct {
	deps   Deps
	opts   Options
	logger *infra.Logger
}

func NewService(deps Deps, opts Options) *Service {
	if opts.DefaultTargetCount <= 0 {
		opts.DefaultTargetCount = 7
	}
	if opts.Ranking.Limit <= 0 {
		opts.Ranking = ranking.DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Service{deps: deps, opts: opts, logger: logger}
}

// PreviewLimit is the configured preview set bound.
func (s *Service) PreviewLimit() int { return s.opts.Ranking.Limit }

// Create validates the request, writes the creating record and enqueues the
// preview build.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Job, error) {
	spec, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	job, err := s.deps.Jobs.Create(ctx, spec)
	if err != nil {
		return nil, err
	}
	item, err := json.Marshal(WorkItem{JobID: job.ID, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode work item: %w", err)
	}
	if err := s.deps.Queue.Push(ctx, repo.BuildPreviewsQueue(), item); err != nil {
		s.fail(context.WithoutCancel(ctx), job.ID, "could not enqueue preview build")
		return nil, err
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("subject", spec.Prompt.Subject).
		Str("theme", spec.Prompt.Theme).
		Str("style", spec.Prompt.Style).
		Int("target_count", spec.TargetCount).
		Msg("jobs: created")
	return job, nil
}

func (s *Service) normalize(in CreateInput) (domain.NewJobSpec, error) {
	subject := strings.TrimSpace(in.Subject)
	theme := strings.TrimSpace(in.Theme)
	style := strings.TrimSpace(in.Style)
	if subject == "" {
		return domain.NewJobSpec{}, domain.Invalid("subject", "is required")
	}
	if theme == "" {
		return domain.NewJobSpec{}, domain.Invalid("theme", "is required")
	}
	if style == "" {
		style = "default"
	}
	target := in.TargetCount
	if target == 0 {
		target = s.opts.DefaultTargetCount
	}
	if target < 1 || target > s.opts.Ranking.Limit {
		return domain.NewJobSpec{}, domain.Invalid("target_count", fmt.Sprintf("must be between 1 and %d", s.opts.Ranking.Limit))
	}
	return domain.NewJobSpec{
		Prompt:       domain.Prompt{Subject: subject, Theme: theme, Style: style},
		TargetCount:  target,
		RequesterRef: strings.TrimSpace(in.RequesterRef),
	}, nil
}

func (s *Service) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.deps.Jobs.Get(ctx, jobID)
}

func (s *Service) Status(ctx context.Context, jobID string) (*Status, error) {
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	picks, err := s.deps.Picks.List(ctx, jobID)
	if err != nil {
		return nil, err
	}
	st := &Status{
		JobID:       job.ID,
		State:       job.State,
		PickCount:   len(picks),
		TargetCount: job.TargetCount,
		Error:       job.LastError,
	}
	if job.Acquisition != nil {
		st.CandidateCount = job.Acquisition.PreviewCount
		st.RawCount = job.Acquisition.RawCount
		st.Profile = job.Acquisition.Profile
	}
	return st, nil
}

// Previews returns the ordered preview URLs; empty until previews exist.
func (s *Service) Previews(ctx context.Context, jobID string) ([]string, error) {
	if _, err := s.deps.Jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	previews, err := s.deps.Previews.List(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return domain.PreviewURLs(previews), nil
}

// TogglePick flips one index. The first pick change moves a preview_ready
// job to picking.
func (s *Service) TogglePick(ctx context.Context, jobID string, index int) (int, error) {
	if index < 1 {
		return 0, domain.Invalid("index", "must be a positive integer")
	}
	if err := s.enterPicking(ctx, jobID); err != nil {
		return 0, err
	}
	return s.deps.Picks.Toggle(ctx, jobID, index)
}

// SetPicks replaces the pick set, truncated to the job's target count.
func (s *Service) SetPicks(ctx context.Context, jobID string, indices []int) ([]int, error) {
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.enterPicking(ctx, jobID); err != nil {
		return nil, err
	}
	return s.deps.Picks.SetBulk(ctx, jobID, indices, job.TargetCount)
}

func (s *Service) Picks(ctx context.Context, jobID string) ([]int, error) {
	if _, err := s.deps.Jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.deps.Picks.List(ctx, jobID)
}

func (s *Service) enterPicking(ctx context.Context, jobID string) error {
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.State.Pickable() {
		return &domain.StateConflictError{Op: "change picks", State: job.State}
	}
	if err := s.deps.Previews.Touch(ctx, jobID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("jobs: refreshing preview ttl failed")
	}
	if job.State == domain.StatePicking {
		return nil
	}
	_, err = s.deps.Jobs.Update(ctx, jobID, func(j *domain.Job) error {
		if j.State == domain.StatePicking {
			return nil
		}
		return j.Advance(domain.StatePicking)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("job_id", jobID).Str("from", string(job.State)).Str("to", string(domain.StatePicking)).Msg("jobs: state changed")
	return nil
}

// Result returns the final assets once the job is done.
func (s *Service) Result(ctx context.Context, jobID string) (*domain.FinalResult, error) {
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != domain.StateDone {
		return nil, &domain.StateConflictError{Op: "read result", State: job.State}
	}
	return s.deps.Results.Get(ctx, jobID)
}

// BuildPreviews acquires and ranks candidates for a creating job. A job that
// vanished or already moved on is logged and skipped; acquisition failure is
// recorded on the job, not returned.
func (s *Service) BuildPreviews(ctx context.Context, jobID string) error {
	if s.deps.Acquirer == nil {
		return errors.New("jobs: no acquirer configured")
	}
	log := s.logger.With().Str("job_id", jobID).Logger()
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("jobs: job disappeared before preview build, dropping")
			return nil
		}
		return err
	}
	if job.State != domain.StateCreating {
		log.Debug().Str("state", string(job.State)).Msg("jobs: preview build already done, skipping")
		return nil
	}

	needed := max(s.opts.Ranking.Limit, job.TargetCount)
	res, err := s.deps.Acquirer.Acquire(ctx, acquisition.Request{JobID: job.ID, Prompt: job.Prompt, Needed: needed})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn().Err(err).Msg("jobs: acquisition failed")
		return s.fail(ctx, job.ID, "image search failed: "+err.Error())
	}

	previews := ranking.Rank(res.Candidates, s.opts.Ranking)
	if len(previews) == 0 {
		msg := fmt.Sprintf("%s (%d raw candidates from profile %s)", domain.ErrNoUsableCandidates, len(res.Candidates), res.Profile)
		log.Warn().Msg("jobs: " + msg)
		return s.fail(ctx, job.ID, msg)
	}

	stored, err := s.deps.Previews.Save(ctx, job.ID, previews)
	if err != nil {
		return err
	}
	_, err = s.deps.Jobs.Update(ctx, job.ID, func(j *domain.Job) error {
		if err := j.Advance(domain.StatePreviewReady); err != nil {
			return err
		}
		j.Acquisition = &domain.AcquisitionMeta{
			Profile:      res.Profile,
			RawCount:     len(res.Candidates),
			PreviewCount: len(stored),
			Attempts:     len(res.Attempts),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("jobs: job expired during preview build, dropping")
			return nil
		}
		return err
	}
	log.Info().
		Str("from", string(domain.StateCreating)).
		Str("to", string(domain.StatePreviewReady)).
		Str("profile", res.Profile).
		Int("raw", len(res.Candidates)).
		Int("previews", len(stored)).
		Msg("jobs: state changed")
	return nil
}

// FailBuild moves a job that is still creating to error with reason. The
// worker calls it once retries of a preview build are exhausted.
func (s *Service) FailBuild(ctx context.Context, jobID, reason string) error {
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if job.State != domain.StateCreating {
		return nil
	}
	return s.fail(ctx, jobID, reason)
}

// fail records msg and moves the job to error. A vanished job is not an error.
func (s *Service) fail(ctx context.Context, jobID, msg string) error {
	_, err := s.deps.Jobs.Update(ctx, jobID, func(j *domain.Job) error {
		return j.Fail(msg)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Str("job_id", jobID).Msg("jobs: job disappeared before failure was recorded")
			return nil
		}
		return err
	}
	s.logger.Info().Str("job_id", jobID).Str("to", string(domain.StateError)).Str("error", msg).Msg("jobs: state changed")
	return nil
}
