// Package storage defines interfaces for persisting in-flight authorization
// attempts and the users they sign in.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/giantswarm/appleid-oauth/providers"
)

var (
	// ErrStateNotFound is returned when a state is unknown, expired or already consumed.
	// The three cases are deliberately indistinguishable to callers.
	ErrStateNotFound = errors.New("authorization state not found")

	// ErrUserNotFound is returned when no user is linked to a subject.
	ErrUserNotFound = errors.New("user not found")
)

// AuthorizationState is the server-side record of one login attempt, keyed by
// the state value sent to the provider.
type AuthorizationState struct {
	// State is the random value echoed back by the provider
	State string

	// SessionBindingHash is the SHA-256 digest of the browser's binding cookie.
	// The callback must present a cookie with the same digest.
	SessionBindingHash string

	// Nonce is bound into the identity token; empty when none was requested
	Nonce string

	// ReturnTo is the local path to redirect to after a successful login
	ReturnTo string

	// AttemptID correlates logs, audit events and spans of this attempt
	AttemptID string

	// Provider is the provider name the attempt was started with
	Provider string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// StateStore persists authorization states between login and callback.
// All methods accept context.Context for tracing and cancellation.
type StateStore interface {
	// SaveState stores state until its ExpiresAt.
	SaveState(ctx context.Context, state *AuthorizationState) error

	// ConsumeState atomically fetches and deletes a state, so that each state
	// value is accepted at most once. Returns ErrStateNotFound for unknown,
	// expired and already consumed states.
	ConsumeState(ctx context.Context, state string) (*AuthorizationState, error)

	// Count returns the number of stored states
	Count(ctx context.Context) (int64, error)
}

// UserRecord is a user linked to a provider subject.
type UserRecord struct {
	Provider      string
	Subject       string
	Name          string
	Email         string
	EmailVerified bool

	// RefreshToken is the latest provider refresh token, used for revocation
	RefreshToken string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time
}

// UserStore links provider subjects to user records.
// All methods accept context.Context for tracing and cancellation.
type UserStore interface {
	// UpsertBySubject creates or updates the record for (provider, user.ID).
	// Name, email and refresh token are only overwritten when the new value
	// is non-empty, because Apple sends the name on the first login only.
	// created reports whether a new record was made.
	UpsertBySubject(ctx context.Context, provider string, user *providers.User) (record *UserRecord, created bool, err error)

	// GetBySubject returns the record for (provider, subject) or ErrUserNotFound.
	GetBySubject(ctx context.Context, provider, subject string) (*UserRecord, error)

	// CountUsers returns the number of stored users
	CountUsers(ctx context.Context) (int64, error)
}

// MergeUser applies user to existing (which may be nil) following the
// UpsertBySubject rules and returns the resulting record.
func MergeUser(existing *UserRecord, provider string, user *providers.User, now time.Time) *UserRecord {
	var rec UserRecord
	if existing != nil {
		rec = *existing
	} else {
		rec = UserRecord{
			Provider:  provider,
			Subject:   user.ID,
			CreatedAt: now,
		}
	}

	if user.Name != "" {
		rec.Name = user.Name
	}
	if user.Email != "" {
		rec.Email = user.Email
		rec.EmailVerified = user.EmailVerified
	}
	if user.RefreshToken != "" {
		rec.RefreshToken = user.RefreshToken
	}
	rec.UpdatedAt = now
	rec.LastLoginAt = now

	return &rec
}
