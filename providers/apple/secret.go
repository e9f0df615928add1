package apple

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MaxClientSecretTTL is the longest lifetime Apple accepts for a client secret (6 months)
	MaxClientSecretTTL = 15777000 * time.Second

	// DefaultClientSecretTTL is used when SigningKey.TTL is zero
	DefaultClientSecretTTL = 24 * time.Hour

	// clientSecretRenewalWindow is how long before expiry a cached secret is re-signed
	clientSecretRenewalWindow = 5 * time.Minute
)

// SigningKey holds the credentials used to sign Apple client secrets.
// The private key is the ".p8" key downloaded from the Apple developer portal.
type SigningKey struct {
	// TeamID is the 10-character Apple developer team identifier
	TeamID string

	// KeyID is the identifier of the signing key
	KeyID string

	// PrivateKeyPEM is the PEM encoded ECDSA P-256 private key (PKCS#8 or SEC 1)
	PrivateKeyPEM []byte

	// TTL is the lifetime of each generated secret (default 24h, max 6 months)
	TTL time.Duration
}

// clientSecretSource yields the client_secret to present at the token endpoint.
type clientSecretSource interface {
	ClientSecret() (string, error)
}

type staticClientSecret string

func (s staticClientSecret) ClientSecret() (string, error) {
	return string(s), nil
}

// ClientSecretSigner generates ES256 client secrets for Sign in with Apple and
// caches them until shortly before they expire. It is safe for concurrent use.
type ClientSecretSigner struct {
	clientID string
	teamID   string
	keyID    string
	key      *ecdsa.PrivateKey
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewClientSecretSigner validates the signing key and returns a signer for clientID.
func NewClientSecretSigner(clientID string, sk *SigningKey) (*ClientSecretSigner, error) {
	if sk == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if sk.TeamID == "" {
		return nil, fmt.Errorf("team ID is required")
	}
	if sk.KeyID == "" {
		return nil, fmt.Errorf("key ID is required")
	}
	if len(sk.PrivateKeyPEM) == 0 {
		return nil, fmt.Errorf("private key is required")
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(sk.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	ttl := sk.TTL
	if ttl == 0 {
		ttl = DefaultClientSecretTTL
	}
	if ttl < 0 || ttl > MaxClientSecretTTL {
		return nil, fmt.Errorf("client secret TTL must be between 0 and %s, got %s", MaxClientSecretTTL, ttl)
	}

	return &ClientSecretSigner{
		clientID: clientID,
		teamID:   sk.TeamID,
		keyID:    sk.KeyID,
		key:      key,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// ClientSecret returns a cached secret, signing a new one when the cached
// secret is missing or about to expire.
func (s *ClientSecretSigner) ClientSecret() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != "" && now.Add(clientSecretRenewalWindow).Before(s.expiresAt) {
		return s.cached, nil
	}

	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": s.teamID,
		"sub": s.clientID,
		"aud": Issuer,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	})
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign client secret: %w", err)
	}

	s.cached = signed
	s.expiresAt = expiresAt
	return signed, nil
}
