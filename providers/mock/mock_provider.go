// Package mock provides mock implementations of the Provider interface for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/giantswarm/appleid-oauth/providers"
)

// MockProvider is a mock implementation of the Provider interface for testing
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked
	AuthorizationURLFunc func(state string, opts *providers.AuthOptions) string

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

	// MapUserFunc is called when MapUser() is invoked
	MapUserFunc func(ctx context.Context, token *oauth2.Token, callback *providers.Callback) (*providers.User, error)

	// RefreshTokenFunc is called when RefreshToken() is invoked
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// RevokeTokenFunc is called when RevokeToken() is invoked
	RevokeTokenFunc func(ctx context.Context, token, tokenTypeHint string) error

	// HealthCheckFunc is called when HealthCheck() is invoked
	HealthCheckFunc func(ctx context.Context) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

var _ providers.Provider = (*MockProvider)(nil)

// NewMockProvider creates a new mock provider with default implementations
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		AuthorizationURLFunc: func(state string, opts *providers.AuthOptions) string {
			params := []providers.QueryParam{{Key: "client_id", Value: "mock-client"}}
			if state != "" {
				params = append(params, providers.QueryParam{Key: "state", Value: state})
			}
			if opts != nil && opts.Nonce != "" {
				params = append(params, providers.QueryParam{Key: "nonce", Value: opts.Nonce})
			}
			return providers.BuildURL("https://mock.example.com/authorize", params)
		},
		ExchangeCodeFunc: func(_ context.Context, code string) (*oauth2.Token, error) {
			if code == "" {
				return nil, &providers.TokenExchangeError{Reason: "empty code"}
			}
			token := &oauth2.Token{
				AccessToken:  "mock-access-token",
				TokenType:    "Bearer",
				RefreshToken: "mock-refresh-token",
			}
			return token.WithExtra(map[string]any{"id_token": "mock-id-token"}), nil
		},
		MapUserFunc: func(_ context.Context, token *oauth2.Token, callback *providers.Callback) (*providers.User, error) {
			user := &providers.User{
				ID:            "mock-user-123",
				Email:         "mock@example.com",
				EmailVerified: true,
				RawClaims:     map[string]any{"sub": "mock-user-123"},
				AccessToken:   token.AccessToken,
				RefreshToken:  token.RefreshToken,
				IDToken:       providers.IDToken(token),
			}
			if callback.HasUserPayload() {
				user.Name = "Mock User"
			}
			return user, nil
		},
		RefreshTokenFunc: func(_ context.Context, refreshToken string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "new-mock-access-token",
				TokenType:    "Bearer",
				RefreshToken: refreshToken,
			}, nil
		},
		RevokeTokenFunc: func(_ context.Context, _, _ string) error {
			return nil
		},
		HealthCheckFunc: func(_ context.Context) error {
			return nil
		},
	}
}

func (m *MockProvider) incrementCallCount(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	m.incrementCallCount("Name")
	return m.NameFunc()
}

// DefaultScopes returns the default scopes
func (m *MockProvider) DefaultScopes() []string {
	m.incrementCallCount("DefaultScopes")
	return []string{"name", "email"}
}

// AuthorizationURL generates the authorization URL
func (m *MockProvider) AuthorizationURL(state string, opts *providers.AuthOptions) string {
	m.incrementCallCount("AuthorizationURL")
	return m.AuthorizationURLFunc(state, opts)
}

// ExchangeCode exchanges an authorization code for tokens
func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	m.incrementCallCount("ExchangeCode")
	return m.ExchangeCodeFunc(ctx, code)
}

// MapUser maps a token and callback to a user
func (m *MockProvider) MapUser(ctx context.Context, token *oauth2.Token, callback *providers.Callback) (*providers.User, error) {
	m.incrementCallCount("MapUser")
	if token == nil {
		return nil, fmt.Errorf("token is nil")
	}
	return m.MapUserFunc(ctx, token, callback)
}

// RefreshToken refreshes an access token
func (m *MockProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	m.incrementCallCount("RefreshToken")
	return m.RefreshTokenFunc(ctx, refreshToken)
}

// RevokeToken revokes a token
func (m *MockProvider) RevokeToken(ctx context.Context, token, tokenTypeHint string) error {
	m.incrementCallCount("RevokeToken")
	return m.RevokeTokenFunc(ctx, token, tokenTypeHint)
}

// HealthCheck checks provider health
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.incrementCallCount("HealthCheck")
	return m.HealthCheckFunc(ctx)
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

// ResetCallCounts resets all call counts to zero
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts = make(map[string]int)
}
