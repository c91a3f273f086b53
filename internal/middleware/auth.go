package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
)

const maxSignedBody = 1 << 20

// BearerToken requires Authorization: Bearer <token>. An empty token
// disables the check.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeAuthError(w, "invalid authorization")
				return
			}
			if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(token)) != 1 {
				writeAuthError(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Signature verifies the HMAC of the request body carried in X-Signature.
// The body is restored for the next handler. An empty secret disables the
// check.
func Signature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				writeAuthError(w, "unreadable body")
				return
			}
			_ = r.Body.Close()
			if !infra.VerifyPayload(secret, body, r.Header.Get(infra.SignatureHeader)) {
				writeAuthError(w, "invalid signature")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = io.WriteString(w, `{"ok":false,"error":{"code":"unauthorized","message":"`+message+`"}}`)
}
