// Package security provides the security primitives used by the Sign in with
// Apple flow: state and nonce generation, session binding, rate limiting,
// encryption at rest, client IP resolution, request IDs and audit logging.
//
// # State and Session Binding
//
// Every authorization attempt gets a fresh state and nonce from GenerateState
// and GenerateNonce (256 bits each). The browser receives a random session
// binding cookie; only its SHA-256 digest (HashSessionBinding) is stored with
// the state, and the callback compares digests with ConstantTimeEqual.
//
//	binding, _ := security.GenerateSessionBinding()
//	state, _ := security.GenerateState()
//	record.SessionBindingHash = security.HashSessionBinding(binding)
//
// # Rate Limiting
//
// RateLimiter is a per-identifier token bucket with LRU eviction so that a
// distributed attack cannot grow memory without bound. Middleware wraps an
// http.Handler and answers 429 with a Retry-After header.
//
//	limiter := security.NewRateLimiter(5, 10, logger)
//	defer limiter.Stop()
//	resolver := security.ClientIPResolver{TrustProxy: true, TrustedProxyCount: 1}
//	handler = limiter.Middleware(resolver.Resolve, nil)(handler)
//
// GetStats reports current entries, evictions and memory pressure.
//
// # Encryption
//
// Encryptor seals stored records with AES-256-GCM. The storage key is passed
// as associated data so a sealed value cannot be replayed under another key.
// DeriveKey turns an application secret into purpose-bound keys with HKDF.
//
// # Audit Logging
//
// Auditor writes structured security events through slog. Subjects are hashed
// before logging and the request ID from the context is attached.
package security
