package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/giantswarm/appleid-oauth/instrumentation"
)

// Auditor handles security event logging with PII protection.
// Subjects are never logged in clear; only a truncated SHA-256 hash is written.
type Auditor struct {
	logger          *slog.Logger
	enabled         bool
	instrumentation *instrumentation.Instrumentation
	now             func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// SetInstrumentation makes the auditor count events in oauth.audit.events.total.
func (a *Auditor) SetInstrumentation(inst *instrumentation.Instrumentation) {
	a.instrumentation = inst
}

// Event represents a security audit event
type Event struct {
	Type      string
	Subject   string
	Provider  string
	AttemptID string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
// The request ID from ctx, if any, is attached for correlation.
func (a *Auditor) LogEvent(ctx context.Context, event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()

	if a.instrumentation != nil {
		a.instrumentation.Metrics().RecordAuditEvent(ctx, event.Type)
	}

	a.logger.InfoContext(ctx, "security_audit",
		"event_type", event.Type,
		"subject_hash", hashForLogging(event.Subject),
		"provider", event.Provider,
		"attempt_id", event.AttemptID,
		"ip_address", event.IPAddress,
		"request_id", GetRequestID(ctx),
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginStarted logs the start of an authorization attempt
func (a *Auditor) LogLoginStarted(ctx context.Context, provider, attemptID, ipAddress string) {
	a.LogEvent(ctx, Event{
		Type:      EventLoginStarted,
		Provider:  provider,
		AttemptID: attemptID,
		IPAddress: ipAddress,
	})
}

// LogLoginSucceeded logs a completed login
func (a *Auditor) LogLoginSucceeded(ctx context.Context, provider, attemptID, subject, ipAddress string, nameDelivered bool) {
	a.LogEvent(ctx, Event{
		Type:      EventLoginSucceeded,
		Subject:   subject,
		Provider:  provider,
		AttemptID: attemptID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"name_delivered": nameDelivered,
		},
	})
}

// LogLoginFailed logs a failed login attempt with its internal reason code
func (a *Auditor) LogLoginFailed(ctx context.Context, provider, attemptID, ipAddress, reason string) {
	a.LogEvent(ctx, Event{
		Type:      EventLoginFailed,
		Provider:  provider,
		AttemptID: attemptID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogStateRejected logs a callback whose state was unknown, expired or bound to another session
func (a *Auditor) LogStateRejected(ctx context.Context, provider, ipAddress, reason string) {
	a.LogEvent(ctx, Event{
		Type:      EventStateRejected,
		Provider:  provider,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogProviderDenied logs a callback carrying an error from the provider
func (a *Auditor) LogProviderDenied(ctx context.Context, provider, attemptID, ipAddress, providerError string) {
	a.LogEvent(ctx, Event{
		Type:      EventProviderDenied,
		Provider:  provider,
		AttemptID: attemptID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"provider_error": providerError,
		},
	})
}

// LogIdentityTokenRejected logs an identity token that failed decoding or verification
func (a *Auditor) LogIdentityTokenRejected(ctx context.Context, provider, attemptID, ipAddress, reason string) {
	a.LogEvent(ctx, Event{
		Type:      EventIdentityTokenRejected,
		Provider:  provider,
		AttemptID: attemptID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogUserLinked logs creation or update of a stored user record
func (a *Auditor) LogUserLinked(ctx context.Context, provider, subject string, created bool) {
	a.LogEvent(ctx, Event{
		Type:     EventUserLinked,
		Subject:  subject,
		Provider: provider,
		Details: map[string]any{
			"created": created,
		},
	})
}

// LogTokenRefreshed logs a provider token refresh
func (a *Auditor) LogTokenRefreshed(ctx context.Context, provider string, success bool) {
	a.LogEvent(ctx, Event{
		Type:     EventTokenRefreshed,
		Provider: provider,
		Details: map[string]any{
			"success": success,
		},
	})
}

// LogTokenRevoked logs a provider token revocation
func (a *Auditor) LogTokenRevoked(ctx context.Context, provider, tokenTypeHint string, success bool) {
	a.LogEvent(ctx, Event{
		Type:     EventTokenRevoked,
		Provider: provider,
		Details: map[string]any{
			"token_type_hint": tokenTypeHint,
			"success":         success,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	a.LogEvent(ctx, Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
