package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/giantswarm/appleid-oauth/instrumentation"
	"github.com/giantswarm/appleid-oauth/internal/util"
	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/security"
	"github.com/giantswarm/appleid-oauth/storage"
)

const (
	// stateLogLength is the number of characters to include when logging state values
	stateLogLength = 8

	// maxProviderErrorLength bounds provider error codes copied into logs and spans
	maxProviderErrorLength = 64
)

// Result is the outcome of a completed login
type Result struct {
	// User is the normalized user produced by the provider
	User *providers.User

	// Record is the stored user; nil without a UserStore
	Record *storage.UserRecord

	// Created reports whether this login created Record
	Created bool

	// ReturnTo is the local path requested when the login was started
	ReturnTo string

	// AttemptID identifies the login attempt in logs and audit events
	AttemptID string
}

// StartAuthorization begins a login attempt and returns the provider URL to
// redirect the user agent to, together with the state it carries.
//
// sessionBinding is a random value the caller also stores in the browser
// (usually a cookie); only its hash is persisted. CompleteAuthorization must
// be called with the same value. returnTo must be a local path; anything
// else falls back to Config.DefaultReturnTo.
func (s *Server) StartAuthorization(ctx context.Context, sessionBinding, returnTo string) (string, string, error) {
	ctx, span := s.tracer.Start(ctx, "server.start_authorization")
	defer span.End()

	providerName := s.provider.Name()
	attemptID := uuid.NewString()
	instrumentation.AddLoginAttributes(span, providerName, attemptID)
	s.addClientIP(ctx, span)

	opts := &providers.AuthOptions{
		Scopes: s.Config.Scopes,
		Extra:  s.Config.ExtraAuthParams,
	}

	var state string
	if !s.Config.DisableState {
		if sessionBinding == "" {
			instrumentation.RecordError(span, ErrSessionBindingRequired)
			return "", "", ErrSessionBindingRequired
		}

		var err error
		state, err = security.GenerateState()
		if err != nil {
			instrumentation.RecordError(span, err)
			return "", "", fmt.Errorf("failed to generate state: %w", err)
		}

		if !s.Config.DisableNonce {
			opts.Nonce, err = security.GenerateNonce()
			if err != nil {
				instrumentation.RecordError(span, err)
				return "", "", fmt.Errorf("failed to generate nonce: %w", err)
			}
		}

		now := s.now()
		record := &storage.AuthorizationState{
			State:              state,
			SessionBindingHash: security.HashSessionBinding(sessionBinding),
			Nonce:              opts.Nonce,
			ReturnTo:           s.resolveReturnTo(returnTo),
			AttemptID:          attemptID,
			Provider:           providerName,
			CreatedAt:          now,
			ExpiresAt:          now.Add(s.Config.StateTTL),
		}
		if err := s.stateStore.SaveState(ctx, record); err != nil {
			err = fmt.Errorf("%w: failed to save authorization state: %w", ErrStorage, err)
			instrumentation.RecordError(span, err)
			return "", "", err
		}
	}

	authURL := s.provider.AuthorizationURL(state, opts)

	if m := s.metrics(); m != nil {
		m.RecordAuthorizationStarted(ctx, providerName)
	}
	s.Auditor.LogLoginStarted(ctx, providerName, attemptID, ClientIPFromContext(ctx))

	s.Logger.InfoContext(ctx, "Authorization started",
		"provider", providerName,
		"attempt_id", attemptID,
		"state_prefix", util.SafeTruncate(state, stateLogLength),
		"nonce_bound", opts.Nonce != "")

	instrumentation.SetSpanSuccess(span)
	return authURL, state, nil
}

// CompleteAuthorization processes the provider callback of a login attempt.
//
// The state is consumed before anything else, so a state is never accepted
// twice, and it must be bound to sessionBinding. A provider-reported error
// ends the attempt before any token request. Only after the user is mapped
// is it persisted and passed to the OnAuthenticated hooks.
func (s *Server) CompleteAuthorization(ctx context.Context, sessionBinding string, callback *providers.Callback) (result *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "server.complete_authorization")
	defer span.End()

	providerName := s.provider.Name()
	instrumentation.AddLoginAttributes(span, providerName, "")
	s.addClientIP(ctx, span)

	var attemptID, providerError string
	defer func() {
		s.recordCallbackOutcome(ctx, span, providerName, attemptID, providerError, result, err)
	}()

	if callback == nil {
		return nil, fmt.Errorf("callback is required")
	}
	instrumentation.AddCallbackAttributes(span, callback.State != "", callback.Code != "", callback.HasUserPayload())

	stored, err := s.verifyState(ctx, providerName, sessionBinding, callback.State)
	if err != nil {
		return nil, err
	}

	returnTo := s.Config.DefaultReturnTo
	if stored != nil {
		attemptID = stored.AttemptID
		returnTo = stored.ReturnTo
		instrumentation.AddLoginAttributes(span, "", attemptID)
		if stored.Nonce != "" {
			ctx = providers.WithNonce(ctx, stored.Nonce)
		}
	} else {
		attemptID = uuid.NewString()
	}

	if callback.Error != "" {
		providerError = util.SafeTruncate(callback.Error, maxProviderErrorLength)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProviderError, providerError))
		return nil, fmt.Errorf("%w: %s", providers.ErrProviderDenied, providerError)
	}

	token, err := s.exchangeCode(ctx, callback.Code)
	if err != nil {
		return nil, err
	}

	user, err := s.provider.MapUser(ctx, token, callback)
	if err != nil {
		return nil, err
	}
	instrumentation.SetSpanAttributes(span,
		attribute.Bool(instrumentation.AttrNameDelivered, user.Name != ""),
		attribute.Bool(instrumentation.AttrEmailVerified, user.EmailVerified),
		attribute.Bool(instrumentation.AttrRefreshPresent, user.RefreshToken != ""),
	)

	result = &Result{
		User:      user,
		ReturnTo:  returnTo,
		AttemptID: attemptID,
	}

	if s.userStore != nil {
		record, created, upsertErr := s.userStore.UpsertBySubject(ctx, providerName, user)
		if upsertErr != nil {
			return nil, fmt.Errorf("%w: failed to store user: %w", ErrStorage, upsertErr)
		}
		result.Record = record
		result.Created = created
		instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrUserCreated, created))

		if m := s.metrics(); m != nil {
			m.RecordUserLinked(ctx, providerName, created)
		}
		s.Auditor.LogUserLinked(ctx, providerName, user.ID, created)
	}

	if err := s.runHooks(ctx, result); err != nil {
		return nil, err
	}

	return result, nil
}

// verifyState consumes the callback state and checks its session binding.
// It returns nil without error when state verification is disabled.
func (s *Server) verifyState(ctx context.Context, providerName, sessionBinding, state string) (*storage.AuthorizationState, error) {
	if s.Config.DisableState {
		return nil, nil
	}

	if err := validateStateParameter(state); err != nil {
		s.rejectState(ctx, providerName, "missing_or_oversized")
		return nil, fmt.Errorf("%w: %w", providers.ErrInvalidState, err)
	}

	// Consume first so a state presented with a wrong binding is still burned
	stored, err := s.stateStore.ConsumeState(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrStateNotFound) {
			s.rejectState(ctx, providerName, "not_found")
			return nil, fmt.Errorf("%w: unknown, expired or already used", providers.ErrInvalidState)
		}
		return nil, fmt.Errorf("%w: failed to consume authorization state: %w", ErrStorage, err)
	}

	if sessionBinding == "" {
		s.rejectState(ctx, providerName, "session_binding_missing")
		return nil, fmt.Errorf("%w: %w", providers.ErrInvalidState, ErrSessionBindingRequired)
	}

	if !security.ConstantTimeEqual(stored.SessionBindingHash, security.HashSessionBinding(sessionBinding)) {
		s.rejectState(ctx, providerName, "session_mismatch")
		s.Logger.WarnContext(ctx, "Callback state bound to a different session",
			"attempt_id", stored.AttemptID,
			"state_prefix", util.SafeTruncate(state, stateLogLength))
		return nil, fmt.Errorf("%w: session binding mismatch", providers.ErrInvalidState)
	}

	if stored.Provider != providerName {
		s.rejectState(ctx, providerName, "provider_mismatch")
		return nil, fmt.Errorf("%w: state issued for provider %q", providers.ErrInvalidState, stored.Provider)
	}

	return stored, nil
}

func (s *Server) rejectState(ctx context.Context, providerName, reason string) {
	if m := s.metrics(); m != nil {
		m.RecordStateValidationFailed(ctx, reason)
	}
	s.Auditor.LogStateRejected(ctx, providerName, ClientIPFromContext(ctx), reason)
}

// exchangeCode calls the provider token endpoint inside its own span
func (s *Server) exchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	providerName := s.provider.Name()
	ctx, span := s.tracer.Start(ctx, providerName+".exchange_code")
	defer span.End()
	instrumentation.AddProviderAttributes(span, providerName, "exchange_code")

	start := time.Now()
	token, err := s.provider.ExchangeCode(ctx, code)
	s.recordProviderCall(ctx, span, "exchange_code", start, err)

	return token, err
}

func (s *Server) recordProviderCall(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	statusCode := 200
	var exchangeErr *providers.TokenExchangeError
	if errors.As(err, &exchangeErr) && exchangeErr.StatusCode != 0 {
		statusCode = exchangeErr.StatusCode
	} else if err != nil {
		statusCode = 0
	}

	instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrProviderStatus, statusCode))
	if err != nil {
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	if m := s.metrics(); m != nil {
		m.RecordProviderAPICall(ctx, s.provider.Name(), operation, statusCode,
			float64(time.Since(start).Milliseconds()), err)
	}
}

func (s *Server) runHooks(ctx context.Context, result *Result) error {
	s.hooksMu.RLock()
	hooks := append([]AuthenticatedHook(nil), s.hooks...)
	s.hooksMu.RUnlock()

	for i, hook := range hooks {
		if err := hook(ctx, result); err != nil {
			if s.Config.FailOnHookError {
				return fmt.Errorf("%w: %w", ErrHookFailed, err)
			}
			s.Logger.WarnContext(ctx, "Authenticated hook failed",
				"hook_index", i,
				"attempt_id", result.AttemptID,
				"error", err)
		}
	}
	return nil
}

// recordCallbackOutcome writes the span status, metrics, audit event and log line of a callback
func (s *Server) recordCallbackOutcome(ctx context.Context, span trace.Span, providerName, attemptID, providerError string, result *Result, err error) {
	reason := FailureReason(err)
	clientIP := ClientIPFromContext(ctx)

	if m := s.metrics(); m != nil {
		m.RecordCallbackProcessed(ctx, providerName, reason)
	}

	if err == nil {
		instrumentation.SetSpanSuccess(span)
		s.Auditor.LogLoginSucceeded(ctx, providerName, attemptID, result.User.ID, clientIP, result.User.Name != "")
		s.Logger.InfoContext(ctx, "Authorization completed",
			"provider", providerName,
			"attempt_id", attemptID,
			"name_delivered", result.User.Name != "",
			"user_created", result.Created)
		return
	}

	instrumentation.RecordError(span, err)
	instrumentation.AddFailureAttributes(span, reason)

	switch reason {
	case ReasonProviderDenied:
		s.Auditor.LogProviderDenied(ctx, providerName, attemptID, clientIP, providerError)
	case ReasonMalformedIDToken:
		if m := s.metrics(); m != nil {
			m.RecordIdentityTokenRejected(ctx, providerName)
		}
		s.Auditor.LogIdentityTokenRejected(ctx, providerName, attemptID, clientIP, err.Error())
	}
	s.Auditor.LogLoginFailed(ctx, providerName, attemptID, clientIP, reason)

	s.Logger.WarnContext(ctx, "Authorization failed",
		"provider", providerName,
		"attempt_id", attemptID,
		"reason", reason,
		"error", err)
}
