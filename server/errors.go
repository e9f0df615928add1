package server

import (
	"context"
	"errors"

	"github.com/giantswarm/appleid-oauth/providers"
)

var (
	// ErrSessionBindingRequired is returned when a login is started or completed
	// without a browser session binding while state verification is enabled
	ErrSessionBindingRequired = errors.New("session binding is required")

	// ErrStorage wraps state and user store failures
	ErrStorage = errors.New("storage failure")

	// ErrHookFailed wraps an OnAuthenticated hook error when Config.FailOnHookError is set
	ErrHookFailed = errors.New("authenticated hook failed")

	// ErrUserStoreRequired is returned by per-user token operations without a UserStore
	ErrUserStoreRequired = errors.New("user store is required")

	// ErrNoRefreshToken is returned when a stored user has no refresh token
	ErrNoRefreshToken = errors.New("no refresh token stored for user")
)

// Failure reason codes recorded in audit events, metrics and spans.
// They are internal; users only ever see a generic failure.
const (
	ReasonSuccess          = "success"
	ReasonInvalidState     = "invalid_state"
	ReasonProviderDenied   = "provider_denied"
	ReasonTokenExchange    = "token_exchange_failed"
	ReasonMalformedIDToken = "malformed_identity_token"
	ReasonTransport        = "transport_error"
	ReasonStorage          = "storage_error"
	ReasonHookFailed       = "hook_failed"
	ReasonCancelled        = "cancelled"
	ReasonSessionBinding   = "session_binding_missing"
	ReasonInternal         = "internal_error"
)

// FailureReason maps an error returned by CompleteAuthorization to its reason code.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ReasonSuccess
	case errors.Is(err, ErrSessionBindingRequired):
		return ReasonSessionBinding
	case errors.Is(err, providers.ErrInvalidState):
		return ReasonInvalidState
	case errors.Is(err, providers.ErrProviderDenied):
		return ReasonProviderDenied
	case providers.IsMalformedIdentityToken(err):
		return ReasonMalformedIDToken
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case providers.IsTransportError(err):
		return ReasonTransport
	case providers.IsTokenExchangeError(err):
		return ReasonTokenExchange
	case errors.Is(err, ErrStorage):
		return ReasonStorage
	case errors.Is(err, ErrHookFailed):
		return ReasonHookFailed
	default:
		return ReasonInternal
	}
}
