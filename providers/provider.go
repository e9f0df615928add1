// Package providers defines the interface for OAuth identity providers and the
// normalized user record they produce.
package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// Provider defines the interface for OAuth/OIDC identity providers.
// A login attempt uses AuthorizationURL to redirect the user agent, then
// ExchangeCode followed by MapUser once the provider calls back.
type Provider interface {
	// Name returns the provider name (e.g., "apple")
	Name() string

	// DefaultScopes returns the scopes requested when AuthOptions does not override them
	DefaultScopes() []string

	// AuthorizationURL generates the URL to redirect users for consent.
	// An empty state omits the state parameter (state tracking disabled).
	AuthorizationURL(state string, opts *AuthOptions) string

	// ExchangeCode exchanges an authorization code for tokens.
	// Exactly one round trip to the token endpoint is made; there are no retries.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// MapUser decodes the identity token carried by token and merges the
	// callback's side-channel data into a normalized user.
	MapUser(ctx context.Context, token *oauth2.Token, callback *Callback) (*User, error)

	// RefreshToken obtains a new access token using a refresh token
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// RevokeToken revokes a token at the provider.
	// tokenTypeHint is "access_token" or "refresh_token" (empty lets the provider decide).
	RevokeToken(ctx context.Context, token, tokenTypeHint string) error

	// HealthCheck verifies that the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// AuthOptions customizes a single authorization request.
type AuthOptions struct {
	// Scopes overrides the provider's default scopes when non-empty
	Scopes []string

	// Nonce is bound into the identity token by OIDC providers
	Nonce string

	// Extra holds additional query parameters. Keys that collide with the
	// parameters the provider sets itself are ignored.
	Extra map[string]string
}

// User is the normalized user produced by a successful login attempt.
// Optional string fields are empty when absent.
type User struct {
	// ID is the provider's stable subject identifier ("sub").
	// It never changes across logins and is the key for account linking.
	ID string

	// Name is the user's full name. Empty unless the provider delivered it
	// during this exchange.
	Name string

	// Email is the user's email address, possibly a private relay address
	Email string

	// EmailVerified indicates if the provider asserted the email as verified
	EmailVerified bool

	// RawClaims is the full decoded identity token claim set
	RawClaims map[string]any

	// AccessToken is the OAuth access token returned by the token endpoint
	AccessToken string

	// RefreshToken is the refresh token, if one was issued
	RefreshToken string

	// IDToken is the compact identity token, kept distinct from AccessToken
	IDToken string

	// ExpiresIn is the access token lifetime in seconds (0 when not reported)
	ExpiresIn int64
}
