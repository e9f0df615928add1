package storage

import (
	"encoding/json"
	"fmt"

	"github.com/giantswarm/appleid-oauth/security"
)

// SealRecord marshals v to JSON and seals it with enc, binding the ciphertext
// to key so it cannot be replayed under another key. With a nil or disabled
// encryptor the JSON is returned as is.
func SealRecord(enc *security.Encryptor, key string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	if !enc.IsEnabled() {
		return string(data), nil
	}
	sealed, err := enc.Seal(data, []byte(key))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt record: %w", err)
	}
	return sealed, nil
}

// OpenRecord reverses SealRecord into v.
func OpenRecord(enc *security.Encryptor, key, sealed string, v any) error {
	data := []byte(sealed)
	if enc.IsEnabled() {
		opened, err := enc.Open(sealed, []byte(key))
		if err != nil {
			return fmt.Errorf("failed to decrypt record: %w", err)
		}
		data = opened
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}
