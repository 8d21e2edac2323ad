package util

import (
	"net/http"
	"strings"
)

const apiCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"

// WithSecurityHeaders sets response hardening headers. Paths under any of
// mediaPrefixes are served with a cross-origin resource policy so the
// frontend can embed audio and ebook files; everything else gets the
// strict API policy.
func WithSecurityHeaders(mediaPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "geolocation=(), camera=()")

			if hasAnyPrefix(r.URL.Path, mediaPrefixes) {
				h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			} else {
				h.Set("X-Frame-Options", "DENY")
				h.Set("Content-Security-Policy", apiCSP)
			}

			if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
