// Package storage defines the persistence interfaces used by the login flow.
//
// The storage package defines two interfaces:
//   - StateStore: pending authorization attempts, keyed by state and consumed once
//   - UserStore: users linked to a provider subject ("sub")
//
// It also provides MergeUser, the shared upsert rule, and SealRecord/OpenRecord,
// which encrypt whole records with the storage key as associated data.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/valkey: Valkey/Redis-compatible distributed storage for production
package storage
