package security

import "net/http"

// SetSecurityHeaders sets security headers on login and callback responses.
// These responses carry redirects and cookies only, so the policy is as strict as possible.
func SetSecurityHeaders(w http.ResponseWriter, https bool) {
	h := w.Header()

	// Prevent clickjacking of the login redirect
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	// The callback URL must not leak to the page we redirect to
	h.Set("Referrer-Policy", "no-referrer")

	if https {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Responses carry one-time state and must never be cached
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
}
