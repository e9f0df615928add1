package oauth

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultCookieName holds the session binding between login and callback.
	// The __Host- prefix pins it to this host and path "/".
	DefaultCookieName = "__Host-appleid_binding"

	// DefaultFailureURL is where failed logins are sent when FailureURL is unset
	DefaultFailureURL = "/login"

	// DefaultCookieMaxAge outlives the default state TTL
	DefaultCookieMaxAge = 15 * time.Minute
)

// Config holds the HTTP handler configuration
type Config struct {
	// SuccessURL overrides the return path stored with the login attempt.
	// Leave empty to send users back where they started.
	SuccessURL string

	// FailureURL receives failed logins with ?error=authentication_failed.
	// Default: DefaultFailureURL
	FailureURL string

	// SuccessHandler, if set, writes the response for a successful login
	// instead of the redirect. Use it to establish the application session.
	SuccessHandler func(w http.ResponseWriter, r *http.Request, result *LoginResult)

	// Cookie configures the session binding cookie
	Cookie CookieConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// CookieConfig configures the session binding cookie.
// The cookie is always HttpOnly and Secure, with SameSite=None because
// Apple posts the callback cross-site.
type CookieConfig struct {
	// Name of the cookie. Default: DefaultCookieName
	Name string

	// MaxAge of the cookie. Default: DefaultCookieMaxAge
	MaxAge time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of this service. Default: 1
	TrustedProxyCount int
}

func (c *Config) applyDefaults() {
	if c.FailureURL == "" {
		c.FailureURL = DefaultFailureURL
	}
	if c.Cookie.Name == "" {
		c.Cookie.Name = DefaultCookieName
	}
	if c.Cookie.MaxAge <= 0 {
		c.Cookie.MaxAge = DefaultCookieMaxAge
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.Rate) + 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
