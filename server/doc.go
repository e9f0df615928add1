// Package server implements the login flow around an identity provider.
//
// The Server issues authorization redirects and completes the provider
// callback. It is provider-agnostic; the Sign in with Apple specifics live in
// providers/apple.
//
// Each login attempt is an independent pipeline:
//
//  1. StartAuthorization generates a state and a nonce, stores them with the
//     hash of the caller's session binding, and returns the provider URL.
//  2. CompleteAuthorization consumes the state (single use), checks the
//     session binding in constant time, rejects provider-reported errors,
//     exchanges the code, and maps the identity token to a user.
//  3. When a UserStore is configured the user is upserted by subject, then
//     the OnAuthenticated hooks run.
//
// A state mismatch never reaches the token endpoint. Every outcome is
// recorded as an audit event, a metric with a reason code, and a span.
//
// Example usage:
//
//	provider, _ := apple.NewProvider(&apple.Config{...})
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(provider, store, store, &server.Config{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.SetAuditor(security.NewAuditor(logger, true))
package server
