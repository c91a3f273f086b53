// Package render hands confirmed selections to the external render and
// caption collaborator. The collaborator answers later through the callback.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
)

// ErrNotConfigured is returned when no webhook URL is set.
var ErrNotConfigured = fmt.Errorf("render: webhook url not configured: %w", domain.ErrUpstream)

// Selection is one picked preview resolved to its URL.
type Selection struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

// Request is the hand-off body sent to the collaborator.
type Request struct {
	JobID       string      `json:"job_id"`
	Subject     string      `json:"subject"`
	Theme       string      `json:"theme"`
	Style       string      `json:"style"`
	TargetCount int         `json:"target_count"`
	WantCaption bool        `json:"want_caption"`
	Picks       []int       `json:"picks"`
	Selected    []Selection `json:"selected"`
	CallbackURL string      `json:"callback_url"`
}

// Dispatcher sends a render request. Implementations return once the
// collaborator has acknowledged receipt, not when rendering completes.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// Options configures the webhook dispatcher.
type Options struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *infra.Logger
}

// Webhook posts render requests as JSON to a fixed URL.
type Webhook struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *infra.Logger
}

func NewWebhook(opts Options) *Webhook {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Webhook{
		url:        strings.TrimSpace(opts.URL),
		secret:     opts.Secret,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (w *Webhook) Dispatch(ctx context.Context, req Request) error {
	if w.url == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("render: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("render: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		httpReq.Header.Set(infra.SignatureHeader, infra.SignPayload(w.secret, body))
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("render: http request: %w: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("render: status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(snippet)), domain.ErrUpstream)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	w.logger.Info().
		Str("job_id", req.JobID).
		Int("status", resp.StatusCode).
		Int("selected", len(req.Selected)).
		Msg("render: dispatch accepted")
	return nil
}

var _ Dispatcher = (*Webhook)(nil)
