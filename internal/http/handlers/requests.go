package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// indexList decodes pick indices given as numbers or numeric strings.
type indexList []int

func (l *indexList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("picks must be an array: %w", err)
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		n, err := parseIndex(item)
		if err != nil {
			return err
		}
		out = append(out, n)
	}
	*l = out
	return nil
}

func parseIndex(item json.RawMessage) (int, error) {
	if len(item) == 0 {
		return 0, fmt.Errorf("index is required")
	}
	var n json.Number
	if err := json.Unmarshal(item, &n); err == nil {
		return atoiIndex(n.String())
	}
	var s string
	if err := json.Unmarshal(item, &s); err != nil {
		return 0, fmt.Errorf("pick %s is not an integer", item)
	}
	return atoiIndex(strings.TrimSpace(s))
}

func atoiIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("pick %q is not an integer", s)
	}
	return n, nil
}

type createJobRequest struct {
	Subject      string `json:"subject"`
	Theme        string `json:"theme"`
	Style        string `json:"style"`
	TargetCount  int    `json:"target_count"`
	RequesterRef string `json:"requester_ref"`
}

type toggleRequest struct {
	Index json.RawMessage `json:"index"`
}

type picksRequest struct {
	Picks indexList `json:"picks"`
}

type finalizeRequest struct {
	Picks       indexList `json:"picks"`
	WantCaption *bool     `json:"want_caption"`
}

// wantCaption defaults to true when the field is absent.
func (f finalizeRequest) wantCaption() bool {
	return f.WantCaption == nil || *f.WantCaption
}

// callbackRequest accepts the final URL list as urls or as slides.
type callbackRequest struct {
	JobID   string   `json:"job_id"`
	URLs    []string `json:"urls"`
	Slides  []string `json:"slides"`
	Caption string   `json:"caption"`
}

func (c callbackRequest) finalURLs() []string {
	if len(c.URLs) > 0 {
		return c.URLs
	}
	return c.Slides
}
