package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never put actual credential values (authorization codes,
// access tokens, refresh tokens, identity tokens, client secrets) in traces or
// metrics. Only record metadata such as presence flags, lengths and outcomes.
const (
	// Login flow attributes
	AttrProvider       = "oauth.provider"        // Provider name (e.g. "apple")
	AttrAttemptID      = "oauth.attempt_id"      // Random login attempt identifier
	AttrScope          = "oauth.scope"           // Requested scopes
	AttrStatePresent   = "oauth.state.present"   // Whether the callback carried a state
	AttrCodePresent    = "oauth.code.present"    // Whether the callback carried a code
	AttrUserPayload    = "oauth.user_payload"    // Whether the side-channel user payload was delivered
	AttrNameDelivered  = "oauth.name.delivered"  // Whether a non-empty name was reconciled
	AttrEmailVerified  = "oauth.email_verified"  // Email verified claim
	AttrUserCreated    = "oauth.user.created"    // Whether the login created a new user record
	AttrFailureReason  = "oauth.failure_reason"  // Internal failure reason code
	AttrProviderError  = "oauth.provider_error"  // OAuth error code returned by the provider
	AttrTokenTypeHint  = "oauth.token_type_hint" //nolint:gosec // Hint only, NOT a token
	AttrRefreshPresent = "oauth.refresh.present" // Whether a refresh token was issued

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Provider attributes
	AttrProviderName      = "provider.name"
	AttrProviderOperation = "provider.operation"
	AttrProviderStatus    = "provider.status"

	// Security attributes
	AttrClientIP       = "security.client_ip"
	AttrAuditEventType = "security.audit.event_type"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddLoginAttributes adds the provider and attempt identifier to a span (nil-safe)
func AddLoginAttributes(span trace.Span, provider, attemptID string) {
	if provider != "" {
		SetSpanAttributes(span, attribute.String(AttrProvider, provider))
	}
	if attemptID != "" {
		SetSpanAttributes(span, attribute.String(AttrAttemptID, attemptID))
	}
}

// AddCallbackAttributes records which callback parameters were present, never their values (nil-safe)
func AddCallbackAttributes(span trace.Span, statePresent, codePresent, userPayload bool) {
	SetSpanAttributes(span,
		attribute.Bool(AttrStatePresent, statePresent),
		attribute.Bool(AttrCodePresent, codePresent),
		attribute.Bool(AttrUserPayload, userPayload),
	)
}

// AddFailureAttributes records the failure reason code on a span (nil-safe)
func AddFailureAttributes(span trace.Span, reason string) {
	if reason != "" {
		SetSpanAttributes(span, attribute.String(AttrFailureReason, reason))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddProviderAttributes adds provider attributes to a span (nil-safe)
func AddProviderAttributes(span trace.Span, providerName, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrProviderName, providerName),
		attribute.String(AttrProviderOperation, operation),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes adds security-related attributes to a span (nil-safe)
//
// PRIVACY NOTE: Client IP addresses may be considered Personally Identifiable Information (PII).
// Check Instrumentation.ShouldLogClientIPs() before calling this function.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
