// Package memory provides an in-memory implementation of the storage interfaces.
//
// This package implements StateStore and UserStore using Go's built-in maps
// with mutex protection for thread safety. It is suitable for development,
// testing, and single-instance deployments where persistence is not required.
//
// Features:
//   - Atomic single-use consumption of authorization states
//   - Automatic cleanup of expired states on a configurable interval
//   - A bound on pending states (SetMaxStates)
//   - Optional refresh token encryption via security.Encryptor
//   - Storage spans and size gauges via instrumentation.Instrumentation
//
// For multi-instance deployments use the storage/valkey package instead, so
// that a callback can land on a different instance than the login.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := server.New(provider, store, store, config, logger)
package memory
