package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/appleid-oauth/internal/util"
	"github.com/giantswarm/appleid-oauth/security"
	"github.com/giantswarm/appleid-oauth/storage"
)

// authorizationStateJSON is the JSON representation of an authorization state
type authorizationStateJSON struct {
	State              string `json:"state"`
	SessionBindingHash string `json:"session_binding_hash"`
	Nonce              string `json:"nonce,omitempty"`
	ReturnTo           string `json:"return_to,omitempty"`
	AttemptID          string `json:"attempt_id,omitempty"`
	Provider           string `json:"provider"`
	CreatedAt          int64  `json:"created_at"`
	ExpiresAt          int64  `json:"expires_at"`
}

func toAuthorizationStateJSON(state *storage.AuthorizationState) *authorizationStateJSON {
	return &authorizationStateJSON{
		State:              state.State,
		SessionBindingHash: state.SessionBindingHash,
		Nonce:              state.Nonce,
		ReturnTo:           state.ReturnTo,
		AttemptID:          state.AttemptID,
		Provider:           state.Provider,
		CreatedAt:          state.CreatedAt.Unix(),
		ExpiresAt:          state.ExpiresAt.Unix(),
	}
}

func fromAuthorizationStateJSON(j *authorizationStateJSON) *storage.AuthorizationState {
	return &storage.AuthorizationState{
		State:              j.State,
		SessionBindingHash: j.SessionBindingHash,
		Nonce:              j.Nonce,
		ReturnTo:           j.ReturnTo,
		AttemptID:          j.AttemptID,
		Provider:           j.Provider,
		CreatedAt:          time.Unix(j.CreatedAt, 0),
		ExpiresAt:          time.Unix(j.ExpiresAt, 0),
	}
}

// SaveState stores an authorization state with a TTL matching its expiry.
// The write uses SET NX so a colliding state value never overwrites another attempt.
func (s *Store) SaveState(ctx context.Context, state *storage.AuthorizationState) error {
	if state == nil || state.State == "" {
		return fmt.Errorf("invalid authorization state")
	}
	if err := validateStringLength(state.State, MaxStateLength, "state"); err != nil {
		return err
	}

	ttl := calculateTTL(state.ExpiresAt, s.now())
	if ttl <= 0 {
		return fmt.Errorf("authorization state already expired")
	}

	key := s.stateKey(state.State)
	data, err := storage.SealRecord(s.getEncryptor(), key, toAuthorizationStateJSON(state))
	if err != nil {
		return err
	}
	if len(data) > MaxRecordSize {
		return fmt.Errorf("%w: authorization state", errInputTooLarge)
	}

	err = s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(data).Nx().Ex(ttl).Build(),
	).Error()
	if err != nil {
		if isNilError(err) {
			return fmt.Errorf("authorization state already exists")
		}
		return fmt.Errorf("failed to save authorization state: %w", err)
	}

	s.logger.Debug("Saved authorization state",
		"state_prefix", util.SafeTruncate(state.State, stateLogLength),
		"attempt_id", state.AttemptID)
	return nil
}

// ConsumeState fetches and deletes a state with a single GETDEL, so only one
// of several concurrent callbacks can obtain it.
func (s *Store) ConsumeState(ctx context.Context, state string) (*storage.AuthorizationState, error) {
	if state == "" || len(state) > MaxStateLength {
		return nil, storage.ErrStateNotFound
	}

	key := s.stateKey(state)
	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}

	var j authorizationStateJSON
	if err := storage.OpenRecord(s.getEncryptor(), key, data, &j); err != nil {
		s.logger.Warn("Discarded unreadable authorization state",
			"state_prefix", util.SafeTruncate(state, stateLogLength),
			"error", err)
		return nil, storage.ErrStateNotFound
	}

	// Valkey expiry is lazy at second granularity; check again here
	result := fromAuthorizationStateJSON(&j)
	if security.IsExpired(result.ExpiresAt, s.now()) {
		return nil, storage.ErrStateNotFound
	}

	return result, nil
}

// Count returns the number of pending states
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.countKeys(ctx, s.prefix+"state:*")
}
