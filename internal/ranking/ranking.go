// Package ranking turns raw candidates into the bounded, ordered preview set.
package ranking

import (
	"math"
	"net/url"
	"slices"
	"strings"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// Score weights.
const (
	resolutionWeight = 10.0
	portraitBonus    = 3.0
	allowBonus       = 2.0
	denyPenalty      = 10.0
	undersizePenalty = 5.0
)

// Options configures Rank.
type Options struct {
	Limit        int
	PerDomainCap int
	AllowDomains []string
	DenyDomains  []string
	MinWidth     int
	MinHeight    int
	// AspectMin and AspectMax bound height/width for the portrait bonus.
	AspectMin float64
	AspectMax float64
	// MaxMegapixels caps the resolution contribution.
	MaxMegapixels float64
}

// DefaultOptions targets 4:5 portrait slides.
func DefaultOptions() Options {
	return Options{
		Limit:         15,
		PerDomainCap:  3,
		MinWidth:      800,
		MinHeight:     1000,
		AspectMin:     1.2,
		AspectMax:     1.5,
		MaxMegapixels: 8,
	}
}

type scored struct {
	candidate domain.Candidate
	canonical string
	host      string
	score     float64
}

// Rank discards insecure URLs, scores the rest, sorts by score (ties by
// acquisition order) and accepts at most Limit entries with distinct
// canonical URLs and no more than PerDomainCap per host.
func Rank(candidates []domain.Candidate, opts Options) []domain.Preview {
	if opts.Limit <= 0 {
		return []domain.Preview{}
	}
	pool := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		canonical, ok := Canonical(c.URL)
		if !ok {
			continue
		}
		host := domain.NormalizeHost(c.Host)
		if host == "" {
			host = domain.NormalizeHost(c.URL)
		}
		pool = append(pool, scored{candidate: c, canonical: canonical, host: host, score: Score(c, host, opts)})
	}

	slices.SortStableFunc(pool, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return a.candidate.Order - b.candidate.Order
		}
	})

	seen := make(map[string]struct{}, len(pool))
	perHost := make(map[string]int)
	previews := make([]domain.Preview, 0, opts.Limit)
	for _, s := range pool {
		if len(previews) >= opts.Limit {
			break
		}
		if _, dup := seen[s.canonical]; dup {
			continue
		}
		if opts.PerDomainCap > 0 && perHost[s.host] >= opts.PerDomainCap {
			continue
		}
		seen[s.canonical] = struct{}{}
		perHost[s.host]++
		previews = append(previews, domain.Preview{
			Index:   len(previews) + 1,
			URL:     s.candidate.URL,
			Host:    s.host,
			Width:   s.candidate.Width,
			Height:  s.candidate.Height,
			Score:   math.Round(s.score*1000) / 1000,
			Profile: s.candidate.Profile,
		})
	}
	return previews
}

// Canonical strips the query string and fragment from an https URL. The
// second result is false for anything that is not a well formed https URL.
func Canonical(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !strings.EqualFold(parsed.Scheme, "https") || parsed.Host == "" {
		return "", false
	}
	parsed.Scheme = "https"
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String(), true
}

// Score rates one candidate whose normalized host is host.
func Score(c domain.Candidate, host string, opts Options) float64 {
	maxMP := opts.MaxMegapixels
	if maxMP <= 0 {
		maxMP = 8
	}
	mp := math.Min(c.Megapixels(), maxMP)
	score := resolutionWeight * math.Log1p(mp) / math.Log1p(maxMP)

	if c.Width > 0 && c.Height > 0 {
		aspect := float64(c.Height) / float64(c.Width)
		if aspect >= opts.AspectMin && aspect <= opts.AspectMax {
			score += portraitBonus
		}
	}
	if MatchesDomain(host, opts.AllowDomains) {
		score += allowBonus
	}
	if MatchesDomain(host, opts.DenyDomains) {
		score -= denyPenalty
	}
	if c.Width < opts.MinWidth || c.Height < opts.MinHeight {
		score -= undersizePenalty
	}
	return score
}

// MatchesDomain reports whether host equals or is a subdomain of any entry.
func MatchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
