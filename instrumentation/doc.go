// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the
// Sign in with Apple login flow.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-login-service",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv, err := server.New(provider, store, store, config, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv.SetInstrumentation(inst)
//
// When Enabled is false every provider is a no-op and recording costs nothing.
// Exporters are wired by passing a TracerProvider or MeterProvider in Config.
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// Login Flow:
//   - oauth.authorization.started{provider}
//   - oauth.callback.processed{provider, reason, success}
//   - oauth.users.linked{provider, created}
//   - oauth.token.refreshed{provider, success}
//   - oauth.token.revoked{provider, success}
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.rate_limit.active_limiters
//   - oauth.state.validation_failed{reason}
//   - oauth.id_token.rejected{provider}
//   - oauth.audit.events.total{event_type}
//   - oauth.encryption.operations.total{operation}
//   - oauth.encryption.duration{operation}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.states.count
//   - storage.users.count
//
// Provider:
//   - provider.api.calls.total{provider, operation, status}
//   - provider.api.duration{provider, operation}
//   - provider.api.errors.total{provider, operation, error_type}
//
// # Security
//
// Authorization codes, tokens and client secrets are never recorded. Spans carry
// presence flags and reason codes only. Client IPs are recorded only when
// Config.LogClientIPs is set.
package instrumentation
