package middleware

import "net/http"

// SecurityHeadersMiddleware adds security-relevant response headers to every
// response, including the cache-busting headers spec requires for the
// feature payload (clients must not cache a stale flag evaluation behind a
// shared HTTP cache).
type SecurityHeadersMiddleware struct {
	headers map[string]string
}

// DefaultSecurityHeaders returns recommended security headers.
func DefaultSecurityHeaders() map[string]string {
	return map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"Cache-Control":          "no-store, no-cache, must-revalidate",
		"Pragma":                 "no-cache",
	}
}

// NewSecurityHeadersMiddleware creates security headers middleware.
func NewSecurityHeadersMiddleware(headers map[string]string) *SecurityHeadersMiddleware {
	if headers == nil {
		headers = DefaultSecurityHeaders()
	}
	return &SecurityHeadersMiddleware{headers: headers}
}

// Handler returns the security headers middleware handler.
func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for key, value := range m.headers {
			w.Header().Set(key, value)
		}
		next.ServeHTTP(w, r)
	})
}
