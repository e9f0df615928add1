package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateRandomString generates a random base64url string of the given length
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GenerateTestToken creates a token response as Apple returns it, carrying idToken.
func GenerateTestToken(idToken string) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  GenerateRandomString(32),
		TokenType:    "Bearer",
		RefreshToken: GenerateRandomString(32),
		Expiry:       time.Now().Add(time.Hour),
	}
	return token.WithExtra(map[string]any{
		"id_token":   idToken,
		"expires_in": float64(3600),
	})
}

// UnsignedIDToken builds a compact token "header.payload.signature" whose
// payload is claims. The header and signature are placeholders, which is
// enough for code that only decodes the payload.
func UnsignedIDToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("failed to marshal claims: %v", err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","kid":"test"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".c2lnbmF0dXJl"
}

// AppleClaims returns a realistic claim set for subject, issued now and valid for ten minutes.
func AppleClaims(issuer, audience, subject string, now time.Time) map[string]any {
	return map[string]any{
		"iss":              issuer,
		"aud":              audience,
		"sub":              subject,
		"iat":              now.Unix(),
		"exp":              now.Add(10 * time.Minute).Unix(),
		"email":            "ada@privaterelay.appleid.com",
		"email_verified":   "true",
		"is_private_email": "true",
		"auth_time":        now.Unix(),
		"nonce_supported":  true,
	}
}

// TokenSigner signs identity tokens with an RSA key and serves the matching JWKS.
type TokenSigner struct {
	KeyID  string
	key    *rsa.PrivateKey
	signer jose.Signer
}

// NewTokenSigner creates a signer with a fresh 2048-bit RSA key.
func NewTokenSigner(t *testing.T, keyID string) *TokenSigner {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	return &TokenSigner{KeyID: keyID, key: key, signer: signer}
}

// Sign returns claims as a signed compact JWT.
func (s *TokenSigner) Sign(t *testing.T, claims map[string]any) string {
	t.Helper()
	raw, err := josejwt.Signed(s.signer).Claims(claims).Serialize()
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return raw
}

// JWKS returns the public key set for the signer.
func (s *TokenSigner) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &s.key.PublicKey,
			KeyID:     s.KeyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	}
}

// NewJWKSServer serves the signer's key set. The server is closed with the test.
func (s *TokenSigner) NewJWKSServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.JWKS())
	}))
	t.Cleanup(server.Close)
	return server
}

// GenerateECPrivateKeyPEM returns a PKCS#8 PEM encoded P-256 key, the format
// Apple issues .p8 keys in.
func GenerateECPrivateKeyPEM(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate EC key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal EC key: %v", err)
	}
	return key, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// AssertTimeEqual asserts two times are equal within a tolerance
func AssertTimeEqual(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("time mismatch: got %v, want %v (tolerance: %v, diff: %v)", got, want, tolerance, diff)
	}
}
