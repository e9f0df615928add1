package oauth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/appleid-oauth/instrumentation"
	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/security"
	"github.com/giantswarm/appleid-oauth/server"
)

const (
	endpointLogin    = "login"
	endpointCallback = "callback"

	// returnToParam names the login query parameter carrying the local return path
	returnToParam = "return_to"
)

// Handler is a thin HTTP adapter for the login Server.
// It owns the session binding cookie and turns every outcome into a redirect.
type Handler struct {
	server      *server.Server
	config      *Config
	logger      *slog.Logger
	tracer      trace.Tracer
	rateLimiter *security.RateLimiter
	ipResolver  security.ClientIPResolver
}

// NewHandler creates a new HTTP handler. Call Stop to release the rate limiter.
func NewHandler(srv *server.Server, config *Config) *Handler {
	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()

	h := &Handler{
		server: srv,
		config: config,
		logger: config.Logger,
		tracer: noop.NewTracerProvider().Tracer("http"),
		ipResolver: security.ClientIPResolver{
			TrustProxy:        config.RateLimit.TrustProxy,
			TrustedProxyCount: config.RateLimit.TrustedProxyCount,
		},
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	if config.RateLimit.Rate > 0 {
		h.rateLimiter = security.NewRateLimiterWithConfig(security.RateLimiterConfig{
			RequestsPerSecond: config.RateLimit.Rate,
			Burst:             config.RateLimit.Burst,
			Logger:            h.logger,
			Instrumentation:   srv.Instrumentation,
		})
	}

	return h
}

// Stop releases background resources
func (h *Handler) Stop() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// RegisterRoutes mounts the login and callback endpoints on mux, wrapped in
// request ID propagation and per-IP rate limiting.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, loginPath, callbackPath string) {
	mux.Handle(loginPath, h.Wrap(http.HandlerFunc(h.ServeLogin)))
	mux.Handle(callbackPath, h.Wrap(http.HandlerFunc(h.ServeCallback)))
}

// Wrap applies the request ID and rate limiting middleware to next.
func (h *Handler) Wrap(next http.Handler) http.Handler {
	if h.rateLimiter != nil {
		next = h.rateLimiter.Middleware(h.ipResolver.Resolve, h.onRateLimited)(next)
	}
	return security.RequestIDMiddleware(next)
}

func (h *Handler) onRateLimited(r *http.Request, clientIP string) {
	ctx := r.Context()
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(ctx, "ip")
	}
	h.server.Auditor.LogRateLimitExceeded(ctx, clientIP, r.URL.Path)
	h.logger.WarnContext(ctx, "Rate limit exceeded",
		"request_id", security.GetRequestID(ctx),
		"path", r.URL.Path)
}

// ServeLogin starts a login: it sets the session binding cookie and
// redirects to the provider.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(h.requestContext(r), "http.login")
	defer span.End()

	security.SetSecurityHeaders(w, isHTTPS(r))

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics(ctx, endpointLogin, r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var binding string
	if !h.server.Config.DisableState {
		var err error
		binding, err = security.GenerateSessionBinding()
		if err != nil {
			h.fail(ctx, w, r, span, endpointLogin, startTime, err)
			return
		}
	}

	authURL, _, err := h.server.StartAuthorization(ctx, binding, r.URL.Query().Get(returnToParam))
	if err != nil {
		h.fail(ctx, w, r, span, endpointLogin, startTime, err)
		return
	}

	if binding != "" {
		http.SetCookie(w, h.bindingCookie(binding, int(h.config.Cookie.MaxAge.Seconds())))
	}

	h.recordHTTPMetrics(ctx, endpointLogin, r.Method, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// ServeCallback handles the provider redirect. Apple uses response_mode=form_post
// when name or email scopes are requested; GET query callbacks are accepted too.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(h.requestContext(r), "http.callback")
	defer span.End()

	security.SetSecurityHeaders(w, isHTTPS(r))

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		h.recordHTTPMetrics(ctx, endpointCallback, r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The binding is single use whatever the outcome
	var binding string
	if cookie, err := r.Cookie(h.config.Cookie.Name); err == nil {
		binding = cookie.Value
	}
	http.SetCookie(w, h.bindingCookie("", -1))

	callback, err := providers.CallbackFromRequest(r)
	if err != nil {
		h.fail(ctx, w, r, span, endpointCallback, startTime, err)
		return
	}
	instrumentation.SetSpanAttributes(span, attribute.Bool("http.binding_cookie_present", binding != ""))

	result, err := h.server.CompleteAuthorization(ctx, binding, callback)
	if err != nil {
		h.fail(ctx, w, r, span, endpointCallback, startTime, err)
		return
	}

	instrumentation.SetSpanSuccess(span)

	if h.config.SuccessHandler != nil {
		h.config.SuccessHandler(w, r.WithContext(ctx), result)
		h.recordHTTPMetrics(ctx, endpointCallback, r.Method, http.StatusOK, startTime)
		return
	}

	target := result.ReturnTo
	if h.config.SuccessURL != "" {
		target = h.config.SuccessURL
	}
	h.recordHTTPMetrics(ctx, endpointCallback, r.Method, http.StatusFound, startTime)
	http.Redirect(w, r, target, http.StatusFound)
}

// fail logs err and redirects to the failure URL with a generic error code
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, r *http.Request, span trace.Span, endpoint string, startTime time.Time, err error) {
	reason := server.FailureReason(err)
	instrumentation.RecordError(span, err)
	instrumentation.AddFailureAttributes(span, reason)

	h.logger.WarnContext(ctx, "Login request failed",
		"endpoint", endpoint,
		"reason", reason,
		"request_id", security.GetRequestID(ctx),
		"error", err)

	h.recordHTTPMetrics(ctx, endpoint, r.Method, http.StatusFound, startTime)
	http.Redirect(w, r, failureRedirect(h.config.FailureURL, ErrorCodeAuthenticationFailed), http.StatusFound)
}

// requestContext attaches the resolved client IP for audit events
func (h *Handler) requestContext(r *http.Request) context.Context {
	return server.WithClientIP(r.Context(), h.ipResolver.Resolve(r))
}

func (h *Handler) bindingCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.config.Cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	}
}

// recordHTTPMetrics records HTTP request metrics (total count and duration)
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}

	duration := time.Since(startTime).Seconds() * 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
