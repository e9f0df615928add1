package apple

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/appleid-oauth/internal/testutil"
	"github.com/giantswarm/appleid-oauth/providers"
)

const (
	testClientID     = "com.example.web"
	testClientSecret = "test-client-secret"
	testRedirectURL  = "https://example.com/auth/apple/callback"
	testTokenPath    = "/auth/token"
	testRevokePath   = "/auth/revoke"
)

// newTestProvider starts a fake Apple token/revoke endpoint and a provider pointing at it.
// Signature verification is disabled; see TestProvider_MapUser_VerifiesSignature.
func newTestProvider(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) (*Provider, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &Config{
		ClientID:                          testClientID,
		ClientSecret:                      testClientSecret,
		RedirectURL:                       testRedirectURL,
		TokenURL:                          server.URL + testTokenPath,
		RevokeURL:                         server.URL + testRevokePath,
		InsecureSkipSignatureVerification: true,
		skipValidation:                    true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return provider, server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func tokenResponse(idToken string) map[string]any {
	return map[string]any{
		"access_token":  "a1b2c3.access",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "r1.refresh",
		"id_token":      idToken,
	}
}

func TestNewProvider(t *testing.T) {
	_, pemKey := testutil.GenerateECPrivateKeyPEM(t)

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: "config is required",
		},
		{
			name:    "missing client ID",
			config:  &Config{ClientSecret: "s", RedirectURL: testRedirectURL},
			wantErr: "client ID is required",
		},
		{
			name:    "client ID with invalid characters",
			config:  &Config{ClientID: "com.example web", ClientSecret: "s", RedirectURL: testRedirectURL},
			wantErr: "invalid client ID",
		},
		{
			name:    "missing secret and signing key",
			config:  &Config{ClientID: testClientID, RedirectURL: testRedirectURL},
			wantErr: "client secret or signing key is required",
		},
		{
			name: "secret and signing key together",
			config: &Config{
				ClientID:     testClientID,
				ClientSecret: "s",
				SigningKey:   &SigningKey{TeamID: "TEAM123456", KeyID: "KEY123", PrivateKeyPEM: pemKey},
				RedirectURL:  testRedirectURL,
			},
			wantErr: "mutually exclusive",
		},
		{
			name:    "missing redirect URL",
			config:  &Config{ClientID: testClientID, ClientSecret: "s"},
			wantErr: "redirect URL is required",
		},
		{
			name:    "plain HTTP redirect URL",
			config:  &Config{ClientID: testClientID, ClientSecret: "s", RedirectURL: "http://example.com/callback"},
			wantErr: "invalid redirect URL",
		},
		{
			name:    "issuer on private network",
			config:  &Config{ClientID: testClientID, ClientSecret: "s", RedirectURL: testRedirectURL, IssuerURL: "https://10.0.0.1"},
			wantErr: "invalid issuer URL",
		},
		{
			name:    "scope with whitespace",
			config:  &Config{ClientID: testClientID, ClientSecret: "s", RedirectURL: testRedirectURL, Scopes: []string{"name email"}},
			wantErr: "invalid scopes",
		},
		{
			name: "invalid signing key",
			config: &Config{
				ClientID:    testClientID,
				SigningKey:  &SigningKey{TeamID: "TEAM123456", KeyID: "KEY123", PrivateKeyPEM: []byte("garbage")},
				RedirectURL: testRedirectURL,
			},
			wantErr: "invalid signing key",
		},
		{
			name:   "static client secret",
			config: &Config{ClientID: testClientID, ClientSecret: "s", RedirectURL: testRedirectURL},
		},
		{
			name: "signing key",
			config: &Config{
				ClientID:    testClientID,
				SigningKey:  &SigningKey{TeamID: "TEAM123456", KeyID: "KEY123", PrivateKeyPEM: pemKey},
				RedirectURL: testRedirectURL,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("NewProvider() expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("NewProvider() error = %q, want it to contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() unexpected error = %v", err)
			}
			if provider.httpClient == nil {
				t.Error("httpClient should not be nil")
			}
			if provider.verifier == nil {
				t.Error("signature verification should be enabled by default")
			}
		})
	}
}

func TestProvider_NameAndDefaultScopes(t *testing.T) {
	provider, _ := newTestProvider(t, http.NotFound, nil)

	if provider.Name() != "apple" {
		t.Errorf("Name() = %q, want apple", provider.Name())
	}

	scopes := provider.DefaultScopes()
	if strings.Join(scopes, " ") != "name email" {
		t.Errorf("DefaultScopes() = %v, want [name email]", scopes)
	}

	scopes[0] = "mutated"
	if provider.DefaultScopes()[0] != "name" {
		t.Error("DefaultScopes() should return a copy")
	}
}

func TestProvider_AuthorizationURL(t *testing.T) {
	provider, _ := newTestProvider(t, http.NotFound, func(c *Config) {
		c.RedirectURL = "https://example.com/cb"
		c.AuthURL = ""
	})

	tests := []struct {
		name  string
		state string
		opts  *providers.AuthOptions
		want  string
	}{
		{
			name:  "default scopes",
			state: "xyz",
			want: "https://appleid.apple.com/auth/authorize?client_id=com.example.web" +
				"&redirect_uri=https%3A%2F%2Fexample.com%2Fcb&scope=name%20email" +
				"&response_type=code&response_mode=form_post&state=xyz",
		},
		{
			name:  "empty state is omitted",
			state: "",
			want: "https://appleid.apple.com/auth/authorize?client_id=com.example.web" +
				"&redirect_uri=https%3A%2F%2Fexample.com%2Fcb&scope=name%20email" +
				"&response_type=code&response_mode=form_post",
		},
		{
			name:  "nonce follows state",
			state: "xyz",
			opts:  &providers.AuthOptions{Nonce: "n-0S6_WzA2Mj"},
			want: "https://appleid.apple.com/auth/authorize?client_id=com.example.web" +
				"&redirect_uri=https%3A%2F%2Fexample.com%2Fcb&scope=name%20email" +
				"&response_type=code&response_mode=form_post&state=xyz&nonce=n-0S6_WzA2Mj",
		},
		{
			name:  "extras are sorted and cannot override fixed parameters",
			state: "xyz",
			opts: &providers.AuthOptions{
				Scopes: []string{"email"},
				Extra: map[string]string{
					"zeta":          "last",
					"alpha":         "first value",
					"response_mode": "query",
					"client_id":     "attacker",
				},
			},
			want: "https://appleid.apple.com/auth/authorize?client_id=com.example.web" +
				"&redirect_uri=https%3A%2F%2Fexample.com%2Fcb&scope=email" +
				"&response_type=code&response_mode=form_post&state=xyz" +
				"&alpha=first%20value&zeta=last",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := provider.AuthorizationURL(tt.state, tt.opts)
			if got != tt.want {
				t.Errorf("AuthorizationURL() =\n  %s\nwant\n  %s", got, tt.want)
			}
			if strings.Contains(got, "+") {
				t.Error("AuthorizationURL() must encode spaces as %20")
			}
		})
	}
}

func TestProvider_AuthorizationURL_Deterministic(t *testing.T) {
	provider, _ := newTestProvider(t, http.NotFound, nil)
	opts := &providers.AuthOptions{Extra: map[string]string{"b": "2", "a": "1", "c": "3"}}

	first := provider.AuthorizationURL("s", opts)
	for i := 0; i < 20; i++ {
		if got := provider.AuthorizationURL("s", opts); got != first {
			t.Fatalf("AuthorizationURL() not deterministic: %s vs %s", got, first)
		}
	}
}

func TestProvider_ExchangeCode(t *testing.T) {
	idToken := testutil.UnsignedIDToken(t, map[string]any{"sub": "001234.abcd"})

	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != testTokenPath {
			http.NotFound(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || user != testClientID || pass != testClientSecret {
			t.Errorf("basic auth = (%q, %q, %v)", user, pass, ok)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
			return
		}

		want := map[string]string{
			"client_id":     testClientID,
			"client_secret": testClientSecret,
			"code":          "c0de",
			"grant_type":    "authorization_code",
			"redirect_uri":  testRedirectURL,
			"scope":         "name email",
		}
		for k, v := range want {
			if got := r.PostForm.Get(k); got != v {
				t.Errorf("form %s = %q, want %q", k, got, v)
			}
		}

		writeJSON(w, http.StatusOK, tokenResponse(idToken))
	}, nil)

	token, err := provider.ExchangeCode(context.Background(), "c0de")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if token.AccessToken != "a1b2c3.access" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
	if providers.IDToken(token) != idToken {
		t.Errorf("IDToken = %q, want %q", providers.IDToken(token), idToken)
	}
	if providers.ExpiresIn(token) != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", providers.ExpiresIn(token))
	}
}

func TestProvider_ExchangeCode_Errors(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		handler    http.HandlerFunc
		closeFirst bool
		check      func(t *testing.T, err error)
	}{
		{
			name: "invalid_grant",
			code: "expired",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			},
			check: func(t *testing.T, err error) {
				var exErr *providers.TokenExchangeError
				if !errors.As(err, &exErr) {
					t.Fatalf("error = %T %v, want TokenExchangeError", err, err)
				}
				if exErr.StatusCode != http.StatusBadRequest {
					t.Errorf("StatusCode = %d, want 400", exErr.StatusCode)
				}
				if exErr.ErrorCode != "invalid_grant" {
					t.Errorf("ErrorCode = %q, want invalid_grant", exErr.ErrorCode)
				}
				if !strings.Contains(exErr.Body, "invalid_grant") {
					t.Errorf("Body = %q, want provider body", exErr.Body)
				}
			},
		},
		{
			name: "missing id_token",
			code: "c0de",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				resp := tokenResponse("")
				delete(resp, "id_token")
				writeJSON(w, http.StatusOK, resp)
			},
			check: func(t *testing.T, err error) {
				var exErr *providers.TokenExchangeError
				if !errors.As(err, &exErr) {
					t.Fatalf("error = %T %v, want TokenExchangeError", err, err)
				}
				if exErr.Reason != "response missing id_token" {
					t.Errorf("Reason = %q", exErr.Reason)
				}
			},
		},
		{
			name:    "empty code",
			code:    "",
			handler: http.NotFound,
			check: func(t *testing.T, err error) {
				if !providers.IsTokenExchangeError(err) {
					t.Fatalf("error = %T %v, want TokenExchangeError", err, err)
				}
			},
		},
		{
			name:       "unreachable endpoint",
			code:       "c0de",
			handler:    http.NotFound,
			closeFirst: true,
			check: func(t *testing.T, err error) {
				if !providers.IsTransportError(err) {
					t.Fatalf("error = %T %v, want TransportError", err, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, server := newTestProvider(t, tt.handler, nil)
			if tt.closeFirst {
				server.Close()
			}

			_, err := provider.ExchangeCode(context.Background(), tt.code)
			if err == nil {
				t.Fatal("ExchangeCode() expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestProvider_ExchangeCode_Cancelled(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.ExchangeCode(ctx, "c0de")
	if !providers.IsTransportError(err) {
		t.Fatalf("ExchangeCode() error = %T %v, want TransportError", err, err)
	}
}

func TestProvider_MapUser(t *testing.T) {
	provider, _ := newTestProvider(t, http.NotFound, nil)
	idToken := testutil.UnsignedIDToken(t, map[string]any{
		"sub":            "001234.abcd",
		"email":          "ada@privaterelay.appleid.com",
		"email_verified": true,
		"nonce":          "n-1",
	})
	token := testutil.GenerateTestToken(idToken)

	tests := []struct {
		name     string
		callback *providers.Callback
		wantName string
	}{
		{
			name:     "first login with name",
			callback: &providers.Callback{Code: "c", User: `{"name":{"firstName":"Ada","lastName":"Lovelace"}}`},
			wantName: "Ada Lovelace",
		},
		{
			name:     "first name only",
			callback: &providers.Callback{Code: "c", User: `{"name":{"firstName":"Ada"}}`},
			wantName: "Ada",
		},
		{
			name:     "returning user",
			callback: &providers.Callback{Code: "c"},
			wantName: "",
		},
		{
			name:     "unparseable payload does not fail the login",
			callback: &providers.Callback{Code: "c", User: "{not json"},
			wantName: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := provider.MapUser(context.Background(), token, tt.callback)
			if err != nil {
				t.Fatalf("MapUser() error = %v", err)
			}
			if user.ID != "001234.abcd" {
				t.Errorf("ID = %q", user.ID)
			}
			if user.Email != "ada@privaterelay.appleid.com" {
				t.Errorf("Email = %q", user.Email)
			}
			if !user.EmailVerified {
				t.Error("EmailVerified should be true")
			}
			if user.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", user.Name, tt.wantName)
			}
			if user.AccessToken != token.AccessToken {
				t.Errorf("AccessToken = %q, want the token endpoint access_token", user.AccessToken)
			}
			if user.IDToken != idToken {
				t.Error("IDToken should be the raw identity token")
			}
			if user.AccessToken == user.IDToken {
				t.Error("AccessToken and IDToken must be kept distinct")
			}
			if user.ExpiresIn != 3600 {
				t.Errorf("ExpiresIn = %d, want 3600", user.ExpiresIn)
			}
			if user.RawClaims["sub"] != "001234.abcd" {
				t.Errorf("RawClaims[sub] = %v", user.RawClaims["sub"])
			}
		})
	}
}

func TestProvider_MapUser_Nonce(t *testing.T) {
	provider, _ := newTestProvider(t, http.NotFound, nil)
	token := testutil.GenerateTestToken(testutil.UnsignedIDToken(t, map[string]any{"sub": "s", "nonce": "expected"}))

	if _, err := provider.MapUser(providers.WithNonce(context.Background(), "expected"), token, nil); err != nil {
		t.Errorf("MapUser() with matching nonce error = %v", err)
	}

	_, err := provider.MapUser(providers.WithNonce(context.Background(), "other"), token, nil)
	if !providers.IsMalformedIdentityToken(err) {
		t.Errorf("MapUser() with mismatched nonce error = %v, want MalformedIdentityTokenError", err)
	}
}

func TestProvider_MapUser_MalformedToken(t *testing.T) {
	provider, _ := newTestProvider(t, http.NotFound, nil)

	_, err := provider.MapUser(context.Background(), testutil.GenerateTestToken("only.two"), nil)
	if !providers.IsMalformedIdentityToken(err) {
		t.Fatalf("MapUser() error = %v, want MalformedIdentityTokenError", err)
	}
}

func TestProvider_MapUser_VerifiesSignature(t *testing.T) {
	signer := testutil.NewTokenSigner(t, "apple-key-1")
	jwks := signer.NewJWKSServer(t)

	provider, _ := newTestProvider(t, http.NotFound, func(c *Config) {
		c.InsecureSkipSignatureVerification = false
		c.JWKSURL = jwks.URL
	})

	now := time.Now()
	valid := signer.Sign(t, testutil.AppleClaims(Issuer, testClientID, "001234.abcd", now))
	user, err := provider.MapUser(context.Background(), testutil.GenerateTestToken(valid), nil)
	if err != nil {
		t.Fatalf("MapUser() with valid signature error = %v", err)
	}
	if user.ID != "001234.abcd" {
		t.Errorf("ID = %q", user.ID)
	}

	forged := testutil.UnsignedIDToken(t, testutil.AppleClaims(Issuer, testClientID, "001234.abcd", now))
	if _, err := provider.MapUser(context.Background(), testutil.GenerateTestToken(forged), nil); err == nil {
		t.Fatal("MapUser() should reject a token without a valid signature")
	}
}

func TestProvider_ExchangeAndMapUser(t *testing.T) {
	var calls int32
	idToken := testutil.UnsignedIDToken(t, map[string]any{"sub": "001234.abcd", "email": "ada@example.com"})

	provider, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, tokenResponse(idToken))
	}, nil)

	t.Run("provider error skips the exchange", func(t *testing.T) {
		_, err := provider.ExchangeAndMapUser(context.Background(), &providers.Callback{
			State: "s",
			Error: "user_cancelled_authorize",
		})
		if !errors.Is(err, providers.ErrProviderDenied) {
			t.Fatalf("error = %v, want ErrProviderDenied", err)
		}
		if !strings.Contains(err.Error(), "user_cancelled_authorize") {
			t.Errorf("error = %q, want provider error code", err.Error())
		}
		if n := atomic.LoadInt32(&calls); n != 0 {
			t.Errorf("token endpoint called %d times, want 0", n)
		}
	})

	t.Run("success", func(t *testing.T) {
		user, err := provider.ExchangeAndMapUser(context.Background(), &providers.Callback{
			Code: "c0de",
			User: `{"name":{"firstName":"Ada","lastName":"Lovelace"}}`,
		})
		if err != nil {
			t.Fatalf("ExchangeAndMapUser() error = %v", err)
		}
		if user.ID != "001234.abcd" || user.Name != "Ada Lovelace" || user.Email != "ada@example.com" {
			t.Errorf("user = %+v", user)
		}
		if n := atomic.LoadInt32(&calls); n != 1 {
			t.Errorf("token endpoint called %d times, want 1", n)
		}
	})

	t.Run("nil callback", func(t *testing.T) {
		if _, err := provider.ExchangeAndMapUser(context.Background(), nil); err == nil {
			t.Error("expected error for nil callback")
		}
	})
}

func TestProvider_RefreshToken(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
			return
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "r1.refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != testClientID {
			t.Errorf("client_id = %q", got)
		}
		if got := r.PostForm.Get("client_secret"); got != testClientSecret {
			t.Errorf("client_secret = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "a2.access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "h.p.s",
		})
	}, nil)

	token, err := provider.RefreshToken(context.Background(), "r1.refresh")
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if token.AccessToken != "a2.access" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
	if token.RefreshToken != "r1.refresh" {
		t.Errorf("RefreshToken = %q, want the original refresh token", token.RefreshToken)
	}

	if _, err := provider.RefreshToken(context.Background(), ""); !providers.IsTokenExchangeError(err) {
		t.Errorf("RefreshToken(\"\") error = %v, want TokenExchangeError", err)
	}
}

func TestProvider_RefreshToken_Revoked(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
	}, nil)

	_, err := provider.RefreshToken(context.Background(), "revoked")
	var exErr *providers.TokenExchangeError
	if !errors.As(err, &exErr) || exErr.ErrorCode != "invalid_grant" {
		t.Fatalf("RefreshToken() error = %v, want invalid_grant TokenExchangeError", err)
	}
}

func TestProvider_RevokeToken(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "revoked", status: http.StatusOK},
		{name: "rejected", status: http.StatusBadRequest, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != testRevokePath {
					t.Errorf("path = %q, want %q", r.URL.Path, testRevokePath)
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("ParseForm() error = %v", err)
					return
				}
				if r.PostForm.Get("token") != "r1.refresh" || r.PostForm.Get("token_type_hint") != "refresh_token" {
					t.Errorf("form = %v", r.PostForm)
				}
				if r.PostForm.Get("client_id") != testClientID || r.PostForm.Get("client_secret") != testClientSecret {
					t.Errorf("client credentials missing from form: %v", r.PostForm)
				}
				w.WriteHeader(tt.status)
				if tt.status != http.StatusOK {
					_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
				}
			}, nil)

			err := provider.RevokeToken(context.Background(), "r1.refresh", "refresh_token")
			if (err != nil) != tt.wantErr {
				t.Fatalf("RevokeToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "invalid_client") {
				t.Errorf("RevokeToken() error = %q, want provider body", err.Error())
			}
		})
	}
}

func TestProvider_RevokeToken_Unreachable(t *testing.T) {
	provider, server := newTestProvider(t, http.NotFound, nil)
	server.Close()

	err := provider.RevokeToken(context.Background(), "r1.refresh", "")
	if !providers.IsTransportError(err) {
		t.Fatalf("RevokeToken() error = %v, want TransportError", err)
	}
	if err := provider.RevokeToken(context.Background(), "", ""); err == nil {
		t.Error("RevokeToken(\"\") should fail")
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	tests := []struct {
		name          string
		responseModes []string
		wantErr       bool
	}{
		{name: "healthy", responseModes: []string{"query", "fragment", "form_post"}},
		{name: "form_post not advertised", responseModes: []string{"query"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var server *httptest.Server
			server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/.well-known/openid-configuration" {
					http.NotFound(w, r)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"issuer":                   server.URL,
					"authorization_endpoint":   server.URL + "/auth/authorize",
					"token_endpoint":           server.URL + "/auth/token",
					"revocation_endpoint":      server.URL + "/auth/revoke",
					"jwks_uri":                 server.URL + "/auth/keys",
					"response_types_supported": []string{"code", "code id_token"},
					"response_modes_supported": tt.responseModes,
					"subject_types_supported":  []string{"pairwise"},
					"id_token_signing_alg_values_supported": []string{"RS256"},
				})
			}))
			defer server.Close()

			provider, _ := newTestProvider(t, http.NotFound, func(c *Config) {
				c.IssuerURL = server.URL
				c.HTTPClient = server.Client()
			})

			err := provider.HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProvider_HealthCheck_Unreachable(t *testing.T) {
	server := httptest.NewTLSServer(http.NotFoundHandler())
	server.Close()

	provider, _ := newTestProvider(t, http.NotFound, func(c *Config) {
		c.IssuerURL = server.URL
	})

	if err := provider.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() expected error for unreachable issuer")
	}
}

var _ providers.Provider = (*Provider)(nil)
