// Package valkey provides a Valkey storage backend for the login flow.
//
// Valkey is a high-performance key-value store that is wire-compatible with Redis.
// A shared store is required when more than one instance serves logins, because
// Apple's form_post callback can reach a different instance than the one that
// started the attempt.
//
// # Implemented Interfaces
//
//   - [storage.StateStore]: pending authorization states, consumed once
//   - [storage.UserStore]: users linked to a provider subject
//
// # Key Schema
//
// All keys use a configurable prefix (default "appleid:"):
//
//	{prefix}state:{state}               -> JSON(AuthorizationState), TTL until expiry
//	{prefix}user:{provider}:{subject}   -> JSON(UserRecord), no TTL
//
// # Atomic Operations
//
//   - SaveState uses SET NX EX, so a state value is never overwritten
//   - ConsumeState uses GETDEL, so a state is accepted at most once across instances
//   - UpsertBySubject creates users with SET NX and merges on conflict
//
// GETDEL requires Valkey 7 or Redis 6.2 and later.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "valkey.example.com:6379",
//	    Password:  os.Getenv("VALKEY_PASSWORD"),
//	    TLS:       &tls.Config{MinVersion: tls.VersionTLS12},
//	})
//
// # Encryption at Rest
//
// Records can be sealed with AES-256-GCM before they are written:
//
//	key, _ := security.DeriveKey(secret, "appleid-oauth storage")
//	encryptor, _ := security.NewEncryptor(key)
//	store.SetEncryptor(encryptor)
//
// Each record is bound to its key as associated data, so a sealed state cannot
// be copied under another state value. A state that fails to decrypt is
// treated as not found.
package valkey
