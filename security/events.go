package security

// Event type constants for security audit logging.
const (
	// Login flow events

	// EventLoginStarted is logged when a user is redirected to the provider
	EventLoginStarted = "login_started"

	// EventLoginSucceeded is logged when a callback produced a normalized user
	EventLoginSucceeded = "login_succeeded"

	// EventLoginFailed is logged when a callback ended in any failure
	EventLoginFailed = "login_failed"

	// Security violation events

	// EventStateRejected is logged when callback state is unknown, expired,
	// already consumed, or bound to a different session (possible CSRF or replay)
	EventStateRejected = "state_rejected"

	// EventProviderDenied is logged when the provider reports an error such as user_cancelled_authorize
	EventProviderDenied = "provider_denied"

	// EventIdentityTokenRejected is logged when an identity token is malformed,
	// fails signature verification, or carries the wrong nonce
	EventIdentityTokenRejected = "identity_token_rejected"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// Account events

	// EventUserLinked is logged when a user record is created or updated from a login
	EventUserLinked = "user_linked"

	// Provider token events

	// EventTokenRefreshed is logged when a provider refresh token is redeemed
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a provider token is revoked
	EventTokenRevoked = "token_revoked"
)
