package server

import (
	"time"
)

const (
	// DefaultStateTTL is how long a login attempt may take between redirect and callback
	DefaultStateTTL = 10 * time.Minute

	// MinStateTTL and MaxStateTTL bound Config.StateTTL
	MinStateTTL = 30 * time.Second
	MaxStateTTL = time.Hour

	// DefaultReturnTo is used when no valid return path is requested
	DefaultReturnTo = "/"
)

// Config holds login server configuration
type Config struct {
	// StateTTL is how long an authorization state stays valid.
	// Default: 10 minutes, clamped to [30s, 1h].
	StateTTL time.Duration

	// DisableState turns off state generation and verification.
	// The authorization URL then omits the state parameter, the callback is
	// not bound to the browser session, and no nonce is requested.
	// WARNING: Only for providers or test setups that cannot round-trip state.
	// Default: false (state REQUIRED for CSRF protection)
	DisableState bool

	// DisableNonce stops requesting a nonce. By default every attempt binds
	// a fresh server-generated nonce into the identity token.
	// Default: false
	DisableNonce bool

	// Scopes overrides the provider's default scopes when non-empty
	Scopes []string

	// ExtraAuthParams are added to every authorization URL.
	// Parameters the provider sets itself are ignored.
	ExtraAuthParams map[string]string

	// DefaultReturnTo is the local path used after login when the requested
	// one is missing or not a safe local path.
	// Default: "/"
	DefaultReturnTo string

	// FailOnHookError makes an OnAuthenticated hook error fail the attempt.
	// When false, hook errors are logged and the login still succeeds.
	// Default: false
	FailOnHookError bool
}
