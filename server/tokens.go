package server

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/giantswarm/appleid-oauth/instrumentation"
)

// Token type hints accepted by RevokeToken
const (
	TokenTypeHintAccess  = "access_token"
	TokenTypeHintRefresh = "refresh_token"
)

// RefreshUserToken redeems the stored refresh token of a user at the provider.
// Apple allows this at most about once a day per user; it verifies that the
// user has not revoked the app. The stored refresh token is kept.
func (s *Server) RefreshUserToken(ctx context.Context, subject string) (*oauth2.Token, error) {
	ctx, span := s.tracer.Start(ctx, "server.refresh_user_token")
	defer span.End()

	providerName := s.provider.Name()
	instrumentation.AddProviderAttributes(span, providerName, "refresh_token")

	refreshToken, err := s.storedRefreshToken(ctx, subject)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	token, err := s.provider.RefreshToken(ctx, refreshToken)
	s.recordProviderCall(ctx, span, "refresh_token", start, err)

	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, providerName, err == nil)
	}
	s.Auditor.LogTokenRefreshed(ctx, providerName, err == nil)

	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return token, nil
}

// RevokeUserTokens revokes the stored refresh token of a user at the provider,
// which ends the app's authorization for that user. Apple requires this when
// an account is deleted.
func (s *Server) RevokeUserTokens(ctx context.Context, subject string) error {
	refreshToken, err := s.storedRefreshToken(ctx, subject)
	if err != nil {
		return err
	}
	return s.RevokeToken(ctx, refreshToken, TokenTypeHintRefresh)
}

// RevokeToken revokes an access or refresh token at the provider
func (s *Server) RevokeToken(ctx context.Context, token, tokenTypeHint string) error {
	ctx, span := s.tracer.Start(ctx, "server.revoke_token")
	defer span.End()

	providerName := s.provider.Name()
	instrumentation.AddProviderAttributes(span, providerName, "revoke_token")
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrTokenTypeHint, tokenTypeHint))

	if token == "" {
		err := fmt.Errorf("token is required")
		instrumentation.RecordError(span, err)
		return err
	}
	if tokenTypeHint != "" && tokenTypeHint != TokenTypeHintAccess && tokenTypeHint != TokenTypeHintRefresh {
		err := fmt.Errorf("unsupported token type hint %q", tokenTypeHint)
		instrumentation.RecordError(span, err)
		return err
	}

	start := time.Now()
	err := s.provider.RevokeToken(ctx, token, tokenTypeHint)
	s.recordProviderCall(ctx, span, "revoke_token", start, err)

	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, providerName, err == nil)
	}
	s.Auditor.LogTokenRevoked(ctx, providerName, tokenTypeHint, err == nil)

	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *Server) storedRefreshToken(ctx context.Context, subject string) (string, error) {
	if s.userStore == nil {
		return "", ErrUserStoreRequired
	}
	record, err := s.userStore.GetBySubject(ctx, s.provider.Name(), subject)
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if record.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}
	return record.RefreshToken, nil
}
