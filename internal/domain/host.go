package domain

import (
	"net/url"
	"strings"
)

// NormalizeHost lower-cases a host, dropping any scheme, port, path and a
// leading "www.".
func NormalizeHost(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ""
	}
	if strings.Contains(v, "://") {
		if parsed, err := url.Parse(v); err == nil {
			v = parsed.Hostname()
		}
	} else {
		if idx := strings.IndexAny(v, "/?#"); idx >= 0 {
			v = v[:idx]
		}
		if idx := strings.LastIndex(v, ":"); idx >= 0 && !strings.Contains(v, "]") {
			v = v[:idx]
		}
	}
	return strings.TrimPrefix(v, "www.")
}
