package infra

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of a request body exchanged with
// the render collaborator.
const SignatureHeader = "X-Signature"

// SignPayload returns the hex HMAC-SHA256 of body under secret.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayload checks signature against body in constant time.
func VerifyPayload(secret string, body []byte, signature string) bool {
	expected := SignPayload(secret, body)
	got := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(signature)), "sha256=")
	return hmac.Equal([]byte(expected), []byte(got))
}
