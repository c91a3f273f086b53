package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = fmt.Errorf("serpapi: api key is required: %w", domain.ErrUpstream)

// Options configures the SerpAPI Google Images client.
type Options struct {
	APIKey         string
	BaseURL        string
	Safe           string
	RatePerSecond  float64
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// SerpAPI queries Google Images through serpapi.com.
type SerpAPI struct {
	apiKey     string
	baseURL    string
	safe       string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *infra.Logger
}

type serpResponse struct {
	ImagesResults []struct {
		Original       string `json:"original"`
		Thumbnail      string `json:"thumbnail"`
		OriginalWidth  int    `json:"original_width"`
		OriginalHeight int    `json:"original_height"`
		Link           string `json:"link"`
		Source         string `json:"source"`
	} `json:"images_results"`
	Pagination struct {
		Next string `json:"next"`
	} `json:"serpapi_pagination"`
	Error string `json:"error"`
}

// NewSerpAPI constructs a client with sane defaults and injected dependencies.
func NewSerpAPI(opts Options) *SerpAPI {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}
	safe := strings.ToLower(strings.TrimSpace(opts.Safe))
	if safe == "" {
		safe = "off"
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &SerpAPI{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		safe:       safe,
		limiter:    limiter,
		httpClient: httpClient,
		logger:     logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *SerpAPI) HasCredentials() bool {
	return c.apiKey != ""
}

// Search fetches one page of Google Images results.
func (c *SerpAPI) Search(ctx context.Context, req Request) (*Page, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.Invalid("query", "is required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("serpapi: rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Set("engine", "google_images")
	params.Set("q", query)
	params.Set("ijn", strconv.Itoa(req.Page))
	params.Set("safe", c.safe)
	params.Set("api_key", c.apiKey)
	if tbs := filterTBS(req.Filter); tbs != "" {
		params.Set("tbs", tbs)
	}

	endpoint := c.baseURL + "/search.json?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: build request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("serpapi: http request: %w: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("serpapi: read response: %w: %w", domain.ErrUpstream, err)
	}

	var decoded serpResponse
	decodeErr := json.Unmarshal(raw, &decoded)
	if resp.StatusCode >= 300 {
		if decodeErr == nil && decoded.Error != "" {
			return nil, fmt.Errorf("serpapi: %s (status %d): %w", decoded.Error, resp.StatusCode, domain.ErrUpstream)
		}
		return nil, fmt.Errorf("serpapi: status %d: %w", resp.StatusCode, domain.ErrUpstream)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("serpapi: decode response: %w: %w", domain.ErrUpstream, decodeErr)
	}
	// SerpAPI reports an exhausted result set as an error string with status 200.
	if decoded.Error != "" {
		if strings.Contains(strings.ToLower(decoded.Error), "hasn't returned any results") {
			return &Page{}, nil
		}
		return nil, fmt.Errorf("serpapi: %s: %w", decoded.Error, domain.ErrUpstream)
	}

	page := &Page{HasMore: decoded.Pagination.Next != ""}
	for _, item := range decoded.ImagesResults {
		imageURL := strings.TrimSpace(item.Original)
		if imageURL == "" {
			imageURL = strings.TrimSpace(item.Thumbnail)
		}
		if imageURL == "" {
			continue
		}
		host := domain.NormalizeHost(item.Link)
		if host == "" {
			host = domain.NormalizeHost(imageURL)
		}
		page.Results = append(page.Results, Result{
			URL:       imageURL,
			Thumbnail: strings.TrimSpace(item.Thumbnail),
			Width:     item.OriginalWidth,
			Height:    item.OriginalHeight,
			Host:      host,
		})
	}
	c.logger.Debug().
		Str("query", query).
		Int("page", req.Page).
		Str("filter", req.Filter.Name).
		Int("results", len(page.Results)).
		Bool("has_more", page.HasMore).
		Msg("serpapi: page fetched")
	return page, nil
}

var megapixelSteps = []int{2, 4, 6, 8, 10, 12, 15, 20, 40, 70}

// filterTBS renders a Filter as a Google Images tbs parameter.
func filterTBS(f Filter) string {
	var parts []string
	if f.PhotoOnly {
		parts = append(parts, "itp:photo")
	}
	if f.PortraitOnly {
		parts = append(parts, "iar:t")
	}
	if f.MinMegapixels > 0 {
		step := 0
		for _, mp := range megapixelSteps {
			if float64(mp) <= f.MinMegapixels {
				step = mp
			}
		}
		if step == 0 {
			step = megapixelSteps[0]
		}
		parts = append(parts, "isz:lt", "islt:"+strconv.Itoa(step)+"mp")
	}
	return strings.Join(parts, ",")
}

var _ Searcher = (*SerpAPI)(nil)
