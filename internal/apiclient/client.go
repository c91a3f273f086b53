// Package apiclient is a typed client for the job API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/poll"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
	State   string
}

func (e *APIError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("api: %d %s: %s (state %s)", e.Status, e.Code, e.Message, e.State)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the status back onto the domain taxonomy.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusBadGateway:
		return domain.ErrUpstream
	case http.StatusServiceUnavailable:
		return domain.ErrPersistence
	default:
		return nil
	}
}

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

type Client struct {
	base  string
	token string
	http  *http.Client
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{base: base, token: opts.Token, http: hc}, nil
}

type CreateRequest struct {
	Subject      string `json:"subject"`
	Theme        string `json:"theme"`
	Style        string `json:"style,omitempty"`
	TargetCount  int    `json:"target_count,omitempty"`
	RequesterRef string `json:"requester_ref,omitempty"`
}

type Created struct {
	JobID       string          `json:"job_id"`
	State       domain.JobState `json:"state"`
	TargetCount int             `json:"target_count"`
}

type Status struct {
	JobID          string          `json:"job_id"`
	State          domain.JobState `json:"state"`
	CandidateCount int             `json:"candidate_count"`
	RawCount       int             `json:"raw_count"`
	Profile        string          `json:"profile"`
	PickCount      int             `json:"pick_count"`
	TargetCount    int             `json:"target_count"`
	Error          string          `json:"error"`
}

type Picks struct {
	Picks     []int `json:"picks"`
	PickCount int   `json:"pick_count"`
}

type Finalized struct {
	JobID     string          `json:"job_id"`
	State     domain.JobState `json:"state"`
	Picks     []int           `json:"picks"`
	Duplicate bool            `json:"duplicate"`
	Reason    string          `json:"reason"`
}

type Result struct {
	URLs        []string  `json:"urls"`
	Caption     string    `json:"caption"`
	CompletedAt time.Time `json:"completed_at"`
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (*Created, error) {
	var out Created
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Previews(ctx context.Context, jobID string) ([]string, error) {
	var out struct {
		Previews []string `json:"previews"`
	}
	err := c.do(ctx, http.MethodGet, jobPath(jobID, "/previews"), nil, &out)
	return out.Previews, err
}

func (c *Client) Picks(ctx context.Context, jobID string) (*Picks, error) {
	var out Picks
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, "/picks"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Toggle flips one pick and returns the new pick count.
func (c *Client) Toggle(ctx context.Context, jobID string, index int) (int, error) {
	var out struct {
		PickCount int `json:"pick_count"`
	}
	err := c.do(ctx, http.MethodPost, jobPath(jobID, "/picks/toggle"), map[string]int{"index": index}, &out)
	return out.PickCount, err
}

func (c *Client) SetPicks(ctx context.Context, jobID string, indices []int) (*Picks, error) {
	var out Picks
	if err := c.do(ctx, http.MethodPut, jobPath(jobID, "/picks"), map[string][]int{"picks": indices}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Finalize(ctx context.Context, jobID string, picks []int, wantCaption bool) (*Finalized, error) {
	body := map[string]any{"picks": picks, "want_caption": wantCaption}
	var out Finalized
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/finalize"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Result(ctx context.Context, jobID string) (*Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, "/result"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitFor polls status until the job reaches one of states or a terminal
// state. Budget exhaustion returns the last status with
// poll.ErrStillProcessing.
func (c *Client) WaitFor(ctx context.Context, jobID string, interval, budget time.Duration, states ...domain.JobState) (*Status, error) {
	var last *Status
	err := poll.Until(ctx, interval, budget, func(ctx context.Context) (bool, error) {
		st, err := c.Status(ctx, jobID)
		if err != nil {
			return false, err
		}
		last = st
		if st.State.Terminal() {
			return true, nil
		}
		for _, s := range states {
			if st.State == s {
				return true, nil
			}
		}
		return false, nil
	})
	return last, err
}

func jobPath(jobID, suffix string) string {
	return "/v1/jobs/" + url.PathEscape(jobID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("apiclient: encode: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("apiclient: read body: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "http_error", Message: strings.TrimSpace(string(raw))}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
				State   string `json:"state"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error.Code != "" {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.State = env.Error.State
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("apiclient: decode: %w", err)
	}
	return nil
}
