package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/appleid-oauth/instrumentation"
	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/security"
	"github.com/giantswarm/appleid-oauth/storage"
)

// AuthenticatedHook is called after a login completed and the user was persisted.
// Hooks run in registration order.
type AuthenticatedHook func(ctx context.Context, result *Result) error

// Server coordinates login attempts: it issues authorization redirects,
// verifies callbacks against stored state and hands the code to the Provider.
type Server struct {
	provider   providers.Provider
	stateStore storage.StateStore
	userStore  storage.UserStore // optional

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	tracer trace.Tracer

	hooksMu sync.RWMutex
	hooks   []AuthenticatedHook

	now func() time.Time
}

// New creates a new login server.
// userStore may be nil, in which case users are not persisted.
func New(
	provider providers.Provider,
	stateStore storage.StateStore,
	userStore storage.UserStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if config == nil {
		config = &Config{}
	}
	if stateStore == nil && !config.DisableState {
		return nil, fmt.Errorf("state store is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	// Apply secure defaults
	config = applySecureDefaults(config, logger)

	return &Server{
		provider:   provider,
		stateStore: stateStore,
		userStore:  userStore,
		Config:     config,
		Logger:     logger,
		tracer:     noop.NewTracerProvider().Tracer("server"),
		now:        time.Now,
	}, nil
}

// Provider returns the identity provider
func (s *Server) Provider() providers.Provider {
	return s.provider
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation sets OpenTelemetry instrumentation for the server
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// SetEncryptor sets the encryptor on the stores that support encryption at rest
func (s *Server) SetEncryptor(enc *security.Encryptor) {
	type encryptorSetter interface {
		SetEncryptor(*security.Encryptor)
	}
	if setter, ok := s.stateStore.(encryptorSetter); ok {
		setter.SetEncryptor(enc)
	}
	if setter, ok := s.userStore.(encryptorSetter); ok {
		setter.SetEncryptor(enc)
	}
}

// OnAuthenticated registers a hook called after every successful login
func (s *Server) OnAuthenticated(hook AuthenticatedHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// HealthCheck verifies that the provider is reachable
func (s *Server) HealthCheck(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "server.health_check")
	defer span.End()

	if err := s.provider.HealthCheck(ctx); err != nil {
		instrumentation.RecordError(span, err)
		return fmt.Errorf("provider health check failed: %w", err)
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}

type clientIPContextKey struct{}

// WithClientIP stores the client IP for audit events of the request
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the client IP set by WithClientIP
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// addClientIP adds the client IP to span when the instrumentation allows it
func (s *Server) addClientIP(ctx context.Context, span trace.Span) {
	if s.Instrumentation != nil && s.Instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, ClientIPFromContext(ctx))
	}
}
