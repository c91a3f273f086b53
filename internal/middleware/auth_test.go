package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "disabled", token: "", header: "", want: http.StatusNoContent},
		{name: "valid", token: "t0k", header: "Bearer t0k", want: http.StatusNoContent},
		{name: "case insensitive scheme", token: "t0k", header: "bearer t0k", want: http.StatusNoContent},
		{name: "missing", token: "t0k", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", token: "t0k", header: "Basic t0k", want: http.StatusUnauthorized},
		{name: "wrong token", token: "t0k", header: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			BearerToken(tc.token)(okHandler()).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"code":"unauthorized"`) {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestSignatureRestoresBody(t *testing.T) {
	body := `{"job_id":"abc","urls":["https://cdn/1"]}`
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/render", strings.NewReader(body))
	req.Header.Set(infra.SignatureHeader, infra.SignPayload("secret", []byte(body)))
	rec := httptest.NewRecorder()
	Signature("secret")(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != body {
		t.Fatalf("handler saw %q, want %q", seen, body)
	}
}

func TestSignatureRejectsBadSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/render", strings.NewReader(`{"job_id":"abc"}`))
	req.Header.Set(infra.SignatureHeader, infra.SignPayload("other", []byte(`{"job_id":"abc"}`)))
	rec := httptest.NewRecorder()
	Signature("secret")(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSignatureDisabledWithoutSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/render", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	Signature("")(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}
