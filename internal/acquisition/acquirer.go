// Package acquisition collects raw candidate images from the search
// collaborator, loosening filters profile by profile until one yields results.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/providers/search"
)

// DefaultProfiles runs from strictest to most permissive.
var DefaultProfiles = []search.Filter{
	{Name: "portrait_photo_2mp", PortraitOnly: true, PhotoOnly: true, MinMegapixels: 2},
	{Name: "portrait_photo", PortraitOnly: true, PhotoOnly: true},
	{Name: "photo", PhotoOnly: true},
	{Name: "any"},
}

// Options tunes an Acquirer. Zero values fall back to defaults.
type Options struct {
	Profiles    []search.Filter
	DenyDomains []string
	// Multiplier scales the needed count into the raw target, leaving
	// ranking room to discard.
	Multiplier int
	MaxPages   int
	// Parallel fetches all pages of a profile concurrently. Profiles are
	// still tried strictly in order.
	Parallel bool
	Logger   *infra.Logger
}

// Request describes what to acquire for one job.
type Request struct {
	JobID  string
	Prompt domain.Prompt
	Needed int
}

// Attempt summarizes one profile's fetches.
type Attempt struct {
	Profile string
	Pages   int
	Raw     int
	Errors  int
	LastErr error
}

// Result is the outcome of a successful acquisition.
type Result struct {
	Query      string
	Profile    string
	Candidates []domain.Candidate
	Attempts   []Attempt
}

// Acquirer runs the staged fallback against a Searcher.
type Acquirer struct {
	searcher search.Searcher
	opts     Options
	logger   *infra.Logger
}

func New(searcher search.Searcher, opts Options) *Acquirer {
	if len(opts.Profiles) == 0 {
		opts.Profiles = DefaultProfiles
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 4
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Acquirer{searcher: searcher, opts: opts, logger: logger}
}

// Acquire returns candidates from the first profile that yields any. When
// every profile comes back empty the error wraps
// domain.ErrAcquisitionExhausted. Context cancellation is returned as is.
func (a *Acquirer) Acquire(ctx context.Context, req Request) (*Result, error) {
	needed := req.Needed
	if needed <= 0 {
		needed = 1
	}
	want := needed * a.opts.Multiplier
	if BuildQuery(req.Prompt, nil) == "" {
		return nil, domain.Invalid("prompt", "produces an empty query")
	}
	query := BuildQuery(req.Prompt, a.opts.DenyDomains)

	result := &Result{Query: query}
	providerErrors := 0
	var lastErr error
	for _, profile := range a.opts.Profiles {
		var (
			found   []search.Result
			attempt Attempt
		)
		if a.opts.Parallel {
			found, attempt = a.fetchParallel(ctx, query, profile)
		} else {
			found, attempt = a.fetchSequential(ctx, query, profile, want)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Attempts = append(result.Attempts, attempt)
		providerErrors += attempt.Errors
		if attempt.LastErr != nil {
			lastErr = attempt.LastErr
		}

		a.logger.Info().
			Str("job_id", req.JobID).
			Str("profile", profile.Name).
			Int("pages", attempt.Pages).
			Int("raw", attempt.Raw).
			Int("errors", attempt.Errors).
			Msg("acquisition: profile attempted")

		if len(found) == 0 {
			continue
		}
		result.Profile = profile.Name
		result.Candidates = toCandidates(found, profile.Name)
		return result, nil
	}

	err := fmt.Errorf("%w (%d profiles tried, %d provider errors)", domain.ErrAcquisitionExhausted, len(a.opts.Profiles), providerErrors)
	if lastErr != nil {
		err = fmt.Errorf("%w; last error: %v", err, lastErr)
	}
	return result, err
}

func (a *Acquirer) fetchSequential(ctx context.Context, query string, profile search.Filter, want int) ([]search.Result, Attempt) {
	attempt := Attempt{Profile: profile.Name}
	var out []search.Result
	for page := 0; page < a.opts.MaxPages && len(out) < want; page++ {
		res, err := a.searcher.Search(ctx, search.Request{Query: query, Page: page, Filter: profile})
		if err != nil {
			attempt.Errors++
			attempt.LastErr = err
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				a.logger.Warn().Err(err).Str("profile", profile.Name).Int("page", page).Msg("acquisition: page failed")
			}
			break
		}
		attempt.Pages++
		out = append(out, usable(res.Results)...)
		if !res.HasMore || len(res.Results) == 0 {
			break
		}
	}
	attempt.Raw = len(out)
	return out, attempt
}

func (a *Acquirer) fetchParallel(ctx context.Context, query string, profile search.Filter) ([]search.Result, Attempt) {
	attempt := Attempt{Profile: profile.Name}
	pages := make([]*search.Page, a.opts.MaxPages)
	errs := make([]error, a.opts.MaxPages)

	// Page failures are recorded, not propagated, so one bad page does not
	// cancel its siblings.
	var g errgroup.Group
	for i := range pages {
		g.Go(func() error {
			pages[i], errs[i] = a.searcher.Search(ctx, search.Request{Query: query, Page: i, Filter: profile})
			return nil
		})
	}
	_ = g.Wait()

	var out []search.Result
	for i, page := range pages {
		if errs[i] != nil {
			attempt.Errors++
			attempt.LastErr = errs[i]
			a.logger.Warn().Err(errs[i]).Str("profile", profile.Name).Int("page", i).Msg("acquisition: page failed")
			continue
		}
		if page == nil {
			continue
		}
		attempt.Pages++
		out = append(out, usable(page.Results)...)
	}
	attempt.Raw = len(out)
	return out, attempt
}

func usable(results []search.Result) []search.Result {
	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			out = append(out, r)
		}
	}
	return out
}

func toCandidates(results []search.Result, profile string) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(results))
	for i, r := range results {
		host := r.Host
		if host == "" {
			host = domain.NormalizeHost(r.URL)
		}
		out = append(out, domain.Candidate{
			URL:       r.URL,
			Thumbnail: r.Thumbnail,
			Width:     r.Width,
			Height:    r.Height,
			Host:      host,
			Profile:   profile,
			Order:     i,
		})
	}
	return out
}
