package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

func TestIndexListAcceptsNumbersAndStrings(t *testing.T) {
	var req finalizeRequest
	if err := json.Unmarshal([]byte(`{"picks":[1," 3 ","5",7]}`), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !slices.Equal(req.Picks, []int{1, 3, 5, 7}) {
		t.Fatalf("picks = %v", req.Picks)
	}
}

func TestIndexListRejectsNonIntegers(t *testing.T) {
	for _, payload := range []string{`{"picks":[1.5]}`, `{"picks":["two"]}`, `{"picks":"1,2"}`, `{"picks":[true]}`} {
		var req finalizeRequest
		if err := json.Unmarshal([]byte(payload), &req); err == nil {
			t.Fatalf("Unmarshal(%s) succeeded with %v", payload, req.Picks)
		}
	}
}

func TestFinalizeRequestCaptionDefault(t *testing.T) {
	cases := []struct {
		payload string
		want    bool
	}{
		{payload: `{}`, want: true},
		{payload: `{"picks":[1]}`, want: true},
		{payload: `{"want_caption":true}`, want: true},
		{payload: `{"want_caption":false}`, want: false},
	}
	for _, tc := range cases {
		var req finalizeRequest
		if err := json.Unmarshal([]byte(tc.payload), &req); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tc.payload, err)
		}
		if got := req.wantCaption(); got != tc.want {
			t.Fatalf("wantCaption(%s) = %v, want %v", tc.payload, got, tc.want)
		}
	}
	if !(finalizeRequest{}).wantCaption() {
		t.Fatal("zero request should want a caption")
	}
}

func TestParseIndexRequiresValue(t *testing.T) {
	if _, err := parseIndex(nil); err == nil {
		t.Fatal("parseIndex(nil) succeeded")
	}
}

func TestCallbackRequestPrefersURLs(t *testing.T) {
	both := callbackRequest{URLs: []string{"a"}, Slides: []string{"b"}}
	if got := both.finalURLs(); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("finalURLs() = %v, want [a]", got)
	}
	slides := callbackRequest{Slides: []string{"b"}}
	if got := slides.finalURLs(); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("finalURLs() = %v, want [b]", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code int
		name string
	}{
		{err: domain.Invalid("x", "bad"), code: http.StatusBadRequest, name: "bad_request"},
		{err: domain.ErrNotFound, code: http.StatusNotFound, name: "not_found"},
		{err: &domain.StateConflictError{Op: "finalize", State: domain.StateDone}, code: http.StatusConflict, name: "conflict"},
		{err: domain.ErrAcquisitionExhausted, code: http.StatusBadGateway, name: "upstream"},
		{err: domain.Persistence("get", errors.New("dial tcp")), code: http.StatusServiceUnavailable, name: "unavailable"},
		{err: errors.New("boom"), code: http.StatusInternalServerError, name: "internal"},
	}
	for _, tc := range tests {
		code, name := classify(tc.err)
		if code != tc.code || name != tc.name {
			t.Errorf("classify(%v) = %d %s, want %d %s", tc.err, code, name, tc.code, tc.name)
		}
	}
}
