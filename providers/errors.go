package providers

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when the state echoed by the provider does not
// match the one issued for this session, is unknown, or has expired.
// It indicates a possible CSRF or replay and ends the attempt.
var ErrInvalidState = errors.New("invalid state")

// ErrProviderDenied is returned when the provider callback carries an error
// parameter instead of an authorization code (e.g., the user cancelled).
var ErrProviderDenied = errors.New("provider denied authorization")

// TokenExchangeError is returned when the token endpoint rejects the exchange
// or its response is missing required fields.
// Body holds the provider's response for diagnostics; it must not be shown to end users.
type TokenExchangeError struct {
	// StatusCode is the HTTP status returned by the token endpoint (0 if the request succeeded)
	StatusCode int

	// ErrorCode is the OAuth error code from the response body, if any
	ErrorCode string

	// Body is the raw response body
	Body string

	// Reason describes missing or invalid fields in a successful response
	Reason string

	Err error
}

func (e *TokenExchangeError) Error() string {
	switch {
	case e.StatusCode != 0 && e.ErrorCode != "":
		return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.ErrorCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("token exchange failed with status %d", e.StatusCode)
	case e.Reason != "":
		return "token exchange failed: " + e.Reason
	case e.Err != nil:
		return "token exchange failed: " + e.Err.Error()
	}
	return "token exchange failed"
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// MalformedIdentityTokenError is returned when the id_token is structurally
// invalid, fails verification, or lacks the subject claim.
type MalformedIdentityTokenError struct {
	Reason string
	Err    error
}

func (e *MalformedIdentityTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed identity token: %s: %v", e.Reason, e.Err)
	}
	return "malformed identity token: " + e.Reason
}

func (e *MalformedIdentityTokenError) Unwrap() error {
	return e.Err
}

// TransportError wraps network, timeout, and cancellation failures from the
// HTTP client. The attempt ends; the user may restart the whole flow.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTokenExchangeError reports whether err is or wraps a *TokenExchangeError.
func IsTokenExchangeError(err error) bool {
	var target *TokenExchangeError
	return errors.As(err, &target)
}

// IsMalformedIdentityToken reports whether err is or wraps a *MalformedIdentityTokenError.
func IsMalformedIdentityToken(err error) bool {
	var target *MalformedIdentityTokenError
	return errors.As(err, &target)
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}
