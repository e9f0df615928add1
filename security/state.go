package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// stateEntropyBytes gives 256 bits of entropy to state and nonce values
	stateEntropyBytes = 32

	// DefaultClockSkewGracePeriod tolerates small clock differences between
	// instances sharing a state store.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// GenerateState returns a URL-safe random state value with 256 bits of entropy.
func GenerateState() (string, error) {
	return randomToken()
}

// GenerateNonce returns a URL-safe random nonce with 256 bits of entropy.
func GenerateNonce() (string, error) {
	return randomToken()
}

// GenerateSessionBinding returns a random value for the browser binding cookie.
func GenerateSessionBinding() (string, error) {
	return randomToken()
}

func randomToken() (string, error) {
	b := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSessionBinding returns the SHA-256 digest of a session binding, base64url
// encoded. Only the digest is persisted so a leaked store cannot be replayed as cookies.
func HashSessionBinding(binding string) string {
	sum := sha256.Sum256([]byte(binding))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two secrets without leaking where they differ.
// Empty values never match.
func ConstantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// IsExpired reports whether expiresAt lies more than DefaultClockSkewGracePeriod before now.
// A zero expiry never expires.
func IsExpired(expiresAt, now time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, now, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod is IsExpired with a custom grace period.
func IsExpiredWithGracePeriod(expiresAt, now time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(gracePeriod))
}
