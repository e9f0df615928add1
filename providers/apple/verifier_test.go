package apple

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/giantswarm/appleid-oauth/internal/testutil"
	"github.com/giantswarm/appleid-oauth/providers"
)

func TestIDTokenVerifier_Verify(t *testing.T) {
	signer := testutil.NewTokenSigner(t, "apple-key-1")
	jwks := signer.NewJWKSServer(t)
	now := time.Now()

	tests := []struct {
		name      string
		mutate    func(claims map[string]any)
		wantError bool
	}{
		{
			name:   "valid token",
			mutate: func(map[string]any) {},
		},
		{
			name:      "wrong audience",
			mutate:    func(c map[string]any) { c["aud"] = "com.other.app" },
			wantError: true,
		},
		{
			name:      "wrong issuer",
			mutate:    func(c map[string]any) { c["iss"] = "https://evil.example.com" },
			wantError: true,
		},
		{
			name: "expired",
			mutate: func(c map[string]any) {
				c["iat"] = now.Add(-2 * time.Hour).Unix()
				c["exp"] = now.Add(-time.Hour).Unix()
			},
			wantError: true,
		},
	}

	verifier := NewIDTokenVerifier(http.DefaultClient, Issuer, jwks.URL, "com.example.web", nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := testutil.AppleClaims(Issuer, "com.example.web", "001234.abcd", now)
			tt.mutate(claims)

			err := verifier.Verify(context.Background(), signer.Sign(t, claims))
			if (err != nil) != tt.wantError {
				t.Fatalf("Verify() error = %v, wantError %v", err, tt.wantError)
			}
			if err != nil && !providers.IsMalformedIdentityToken(err) {
				t.Errorf("Verify() error = %T, want MalformedIdentityTokenError", err)
			}
		})
	}
}

func TestIDTokenVerifier_UnknownKey(t *testing.T) {
	published := testutil.NewTokenSigner(t, "apple-key-1")
	attacker := testutil.NewTokenSigner(t, "apple-key-1")
	jwks := published.NewJWKSServer(t)

	verifier := NewIDTokenVerifier(http.DefaultClient, Issuer, jwks.URL, "com.example.web", nil)
	token := attacker.Sign(t, testutil.AppleClaims(Issuer, "com.example.web", "001234.abcd", time.Now()))

	err := verifier.Verify(context.Background(), token)
	if err == nil {
		t.Fatal("Verify() should reject a token signed by an unpublished key")
	}
}

func TestIDTokenVerifier_UnsignedToken(t *testing.T) {
	signer := testutil.NewTokenSigner(t, "apple-key-1")
	jwks := signer.NewJWKSServer(t)

	verifier := NewIDTokenVerifier(http.DefaultClient, Issuer, jwks.URL, "com.example.web", nil)
	token := testutil.UnsignedIDToken(t, testutil.AppleClaims(Issuer, "com.example.web", "001234.abcd", time.Now()))

	if err := verifier.Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should reject a token with a forged signature")
	}
}
