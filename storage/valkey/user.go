package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/storage"
)

// userRecordJSON is the JSON representation of a user record
type userRecordJSON struct {
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
	LastLoginAt   int64  `json:"last_login_at"`
}

func toUserRecordJSON(rec *storage.UserRecord) *userRecordJSON {
	return &userRecordJSON{
		Provider:      rec.Provider,
		Subject:       rec.Subject,
		Name:          rec.Name,
		Email:         rec.Email,
		EmailVerified: rec.EmailVerified,
		RefreshToken:  rec.RefreshToken,
		CreatedAt:     rec.CreatedAt.Unix(),
		UpdatedAt:     rec.UpdatedAt.Unix(),
		LastLoginAt:   rec.LastLoginAt.Unix(),
	}
}

func fromUserRecordJSON(j *userRecordJSON) *storage.UserRecord {
	return &storage.UserRecord{
		Provider:      j.Provider,
		Subject:       j.Subject,
		Name:          j.Name,
		Email:         j.Email,
		EmailVerified: j.EmailVerified,
		RefreshToken:  j.RefreshToken,
		CreatedAt:     time.Unix(j.CreatedAt, 0),
		UpdatedAt:     time.Unix(j.UpdatedAt, 0),
		LastLoginAt:   time.Unix(j.LastLoginAt, 0),
	}
}

// UpsertBySubject creates or updates the user linked to (provider, user.ID).
// Creation uses SET NX; when another login created the record first, the
// merge is retried against the stored record.
func (s *Store) UpsertBySubject(ctx context.Context, provider string, user *providers.User) (*storage.UserRecord, bool, error) {
	if user == nil || user.ID == "" {
		return nil, false, fmt.Errorf("user subject cannot be empty")
	}
	if provider == "" {
		return nil, false, fmt.Errorf("provider cannot be empty")
	}
	if err := validateStringLength(provider, MaxIDLength, "provider"); err != nil {
		return nil, false, err
	}
	if err := validateStringLength(user.ID, MaxIDLength, "subject"); err != nil {
		return nil, false, err
	}

	key := s.userKey(provider, user.ID)

	for range maxUpsertAttempts {
		existing, err := s.getUser(ctx, key)
		if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
			return nil, false, err
		}

		merged := storage.MergeUser(existing, provider, user, s.now())
		data, err := storage.SealRecord(s.getEncryptor(), key, toUserRecordJSON(merged))
		if err != nil {
			return nil, false, err
		}
		if len(data) > MaxRecordSize {
			return nil, false, fmt.Errorf("%w: user record", errInputTooLarge)
		}

		if existing != nil {
			if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(data).Build()).Error(); err != nil {
				return nil, false, fmt.Errorf("failed to save user: %w", err)
			}
			return merged, false, nil
		}

		err = s.client.Do(ctx, s.client.B().Set().Key(key).Value(data).Nx().Build()).Error()
		if err == nil {
			return merged, true, nil
		}
		if !isNilError(err) {
			return nil, false, fmt.Errorf("failed to create user: %w", err)
		}
		// Lost the race to a concurrent login; merge into its record
	}

	return nil, false, fmt.Errorf("failed to upsert user after %d attempts", maxUpsertAttempts)
}

// GetBySubject returns the user linked to (provider, subject)
func (s *Store) GetBySubject(ctx context.Context, provider, subject string) (*storage.UserRecord, error) {
	return s.getUser(ctx, s.userKey(provider, subject))
}

// CountUsers returns the number of stored users
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.countKeys(ctx, s.prefix+"user:*")
}

func (s *Store) getUser(ctx context.Context, key string) (*storage.UserRecord, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var j userRecordJSON
	if err := storage.OpenRecord(s.getEncryptor(), key, data, &j); err != nil {
		return nil, err
	}
	return fromUserRecordJSON(&j), nil
}
