package apple

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/appleid-oauth/internal/util"
	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/providers/oidc"
)

// Apple endpoints. Each can be overridden in Config for testing.
const (
	Issuer    = "https://appleid.apple.com"
	AuthURL   = Issuer + "/auth/authorize"
	TokenURL  = Issuer + "/auth/token"
	RevokeURL = Issuer + "/auth/revoke"
	JWKSURL   = Issuer + "/auth/keys"
)

// ProviderName is the value returned by Provider.Name.
const ProviderName = "apple"

// defaultAppleScopes are the scopes requested when Config.Scopes is empty.
// Apple supports no others; "openid" is implied.
var defaultAppleScopes = []string{"name", "email"}

// fixedAuthParams are set by AuthorizationURL itself and cannot be overridden by extras.
var fixedAuthParams = map[string]struct{}{
	"client_id":     {},
	"redirect_uri":  {},
	"scope":         {},
	"response_type": {},
	"response_mode": {},
	"state":         {},
	"nonce":         {},
}

// maxRevokeResponseSize bounds the revocation error body kept for diagnostics.
const maxRevokeResponseSize = 4096

// Provider implements the providers.Provider interface for Sign in with Apple.
type Provider struct {
	clientID        string
	redirectURL     string
	scopes          []string
	secrets         clientSecretSource
	authURL         string
	tokenURL        string
	revokeURL       string
	issuerURL       string
	verifier        *IDTokenVerifier
	discoveryClient *oidc.DiscoveryClient
	httpClient      *http.Client
	requestTimeout  time.Duration
	logger          *slog.Logger
}

// Config holds Sign in with Apple configuration
type Config struct {
	// ClientID is the Services ID (web) or bundle ID (native) registered with Apple
	ClientID string

	// ClientSecret is a pre-generated client secret JWT.
	// Mutually exclusive with SigningKey.
	ClientSecret string

	// SigningKey is used to generate and renew client secrets automatically.
	// Mutually exclusive with ClientSecret.
	SigningKey *SigningKey

	// RedirectURL is the registered return URL. Apple requires HTTPS.
	RedirectURL string

	// Scopes are optional custom scopes (default: ["name", "email"])
	Scopes []string

	// HTTPClient is an optional custom HTTP client
	HTTPClient *http.Client

	// RequestTimeout is the timeout for provider API calls (default: 30s)
	RequestTimeout time.Duration

	// InsecureSkipSignatureVerification disables the JWKS signature check of
	// identity tokens. The token then relies solely on having been received
	// over TLS directly from the token endpoint.
	InsecureSkipSignatureVerification bool

	// Logger is used for non-fatal diagnostics (default: slog.Default())
	Logger *slog.Logger

	// Endpoint overrides, mostly useful for tests
	AuthURL   string
	TokenURL  string
	RevokeURL string
	JWKSURL   string
	IssuerURL string

	// skipValidation skips SSRF protection for issuer URLs
	// INTERNAL USE ONLY: This is for testing with localhost test servers
	// Production code must NEVER set this to true
	skipValidation bool
}

// NewProvider creates a new Sign in with Apple provider.
// No network calls are made; Apple's keys are fetched on first use.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := validateRequiredConfig(cfg); err != nil {
		return nil, err
	}

	scopes, err := resolveScopes(cfg.Scopes)
	if err != nil {
		return nil, err
	}

	secrets, err := resolveClientSecret(cfg)
	if err != nil {
		return nil, err
	}

	requestTimeout := resolveTimeout(cfg.RequestTimeout)
	httpClient := resolveHTTPClient(cfg.HTTPClient, requestTimeout)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		clientID:        cfg.ClientID,
		redirectURL:     cfg.RedirectURL,
		scopes:          scopes,
		secrets:         secrets,
		authURL:         orDefault(cfg.AuthURL, AuthURL),
		tokenURL:        orDefault(cfg.TokenURL, TokenURL),
		revokeURL:       orDefault(cfg.RevokeURL, RevokeURL),
		issuerURL:       orDefault(cfg.IssuerURL, Issuer),
		discoveryClient: createDiscoveryClient(cfg.skipValidation, httpClient, logger),
		httpClient:      httpClient,
		requestTimeout:  requestTimeout,
		logger:          logger,
	}

	if cfg.InsecureSkipSignatureVerification {
		logger.Warn("Identity token signature verification is disabled", "client_id", cfg.ClientID)
	} else {
		p.verifier = NewIDTokenVerifier(httpClient, p.issuerURL, orDefault(cfg.JWKSURL, JWKSURL), cfg.ClientID, nil)
	}

	return p, nil
}

// validateRequiredConfig validates required configuration fields.
func validateRequiredConfig(cfg *Config) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if err := oidc.ValidateClientID(cfg.ClientID); err != nil {
		return fmt.Errorf("invalid client ID: %w", err)
	}

	if cfg.ClientSecret == "" && cfg.SigningKey == nil {
		return fmt.Errorf("client secret or signing key is required")
	}
	if cfg.ClientSecret != "" && cfg.SigningKey != nil {
		return fmt.Errorf("client secret and signing key are mutually exclusive")
	}

	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect URL is required")
	}

	// SECURITY: Validate URLs (skip for tests using loopback servers)
	if !cfg.skipValidation {
		if err := oidc.ValidateRedirectURL(cfg.RedirectURL); err != nil {
			return fmt.Errorf("invalid redirect URL: %w", err)
		}
		if cfg.IssuerURL != "" {
			if err := oidc.ValidateIssuerURL(cfg.IssuerURL); err != nil {
				return fmt.Errorf("invalid issuer URL: %w", err)
			}
		}
	}

	return nil
}

// resolveScopes returns validated scopes, using defaults if none provided.
func resolveScopes(configScopes []string) ([]string, error) {
	scopes := configScopes
	if len(scopes) == 0 {
		scopes = defaultAppleScopes
	}

	if err := oidc.ValidateScopes(scopes); err != nil {
		return nil, fmt.Errorf("invalid scopes: %w", err)
	}

	out := make([]string, len(scopes))
	copy(out, scopes)
	return out, nil
}

func resolveClientSecret(cfg *Config) (clientSecretSource, error) {
	if cfg.SigningKey == nil {
		return staticClientSecret(cfg.ClientSecret), nil
	}
	signer, err := NewClientSecretSigner(cfg.ClientID, cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return signer, nil
}

// resolveTimeout returns the timeout, using default if not set.
func resolveTimeout(timeout time.Duration) time.Duration {
	if timeout == 0 {
		return 30 * time.Second
	}
	return timeout
}

// resolveHTTPClient returns the HTTP client, creating one if not provided.
func resolveHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: timeout}
}

// createDiscoveryClient creates an OIDC discovery client.
func createDiscoveryClient(skipValidation bool, httpClient *http.Client, logger *slog.Logger) *oidc.DiscoveryClient {
	if skipValidation {
		return oidc.NewTestDiscoveryClient(httpClient, 1*time.Hour, logger)
	}
	return oidc.NewDiscoveryClient(httpClient, 1*time.Hour, logger)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Name returns the provider name
func (p *Provider) Name() string {
	return ProviderName
}

// DefaultScopes returns the provider's configured default scopes.
// Returns a copy to prevent external modification.
func (p *Provider) DefaultScopes() []string {
	scopes := make([]string, len(p.scopes))
	copy(scopes, p.scopes)
	return scopes
}

// AuthorizationURL builds the URL of Apple's consent page.
//
// Parameters appear exactly once, in this order: client_id, redirect_uri,
// scope, response_type=code, response_mode=form_post, state, nonce, followed
// by opts.Extra sorted by key. state is omitted when empty and nonce when not
// requested. Extras that name one of the fixed parameters are dropped.
// Values are percent-encoded per RFC 3986, so spaces become "%20".
func (p *Provider) AuthorizationURL(state string, opts *providers.AuthOptions) string {
	if opts == nil {
		opts = &providers.AuthOptions{}
	}

	scopes := p.scopes
	if len(opts.Scopes) > 0 {
		scopes = opts.Scopes
	}

	params := []providers.QueryParam{
		{Key: "client_id", Value: p.clientID},
		{Key: "redirect_uri", Value: p.redirectURL},
		{Key: "scope", Value: strings.Join(scopes, " ")},
		{Key: "response_type", Value: "code"},
		{Key: "response_mode", Value: "form_post"},
	}
	if state != "" {
		params = append(params, providers.QueryParam{Key: "state", Value: state})
	}
	if opts.Nonce != "" {
		params = append(params, providers.QueryParam{Key: "nonce", Value: opts.Nonce})
	}

	extraKeys := make([]string, 0, len(opts.Extra))
	for k := range opts.Extra {
		if _, fixed := fixedAuthParams[k]; fixed || k == "" {
			continue
		}
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		params = append(params, providers.QueryParam{Key: k, Value: opts.Extra[k]})
	}

	return providers.BuildURL(p.authURL, params)
}

// ensureContextTimeout ensures the context has a deadline, adding one if needed.
func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

// oauth2Config returns an oauth2.Config for a single request.
// A fresh config per call keeps the (possibly renewed) client secret out of shared state.
func (p *Provider) oauth2Config(clientSecret string, authStyle oauth2.AuthStyle) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: clientSecret,
		RedirectURL:  p.redirectURL,
		Scopes:       p.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.authURL,
			TokenURL:  p.tokenURL,
			AuthStyle: authStyle,
		},
	}
}

// ExchangeCode exchanges an authorization code at Apple's token endpoint.
//
// The client authenticates with HTTP Basic credentials and repeats
// client_id and client_secret in the form body together with the
// requested scope. A response without id_token is rejected.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, &providers.TokenExchangeError{Reason: "authorization code is empty"}
	}

	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	secret, err := p.secrets.ClientSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain client secret: %w", err)
	}

	token, err := providers.ExchangeCode(ctx, p.oauth2Config(secret, oauth2.AuthStyleInHeader), p.httpClient, code,
		oauth2.SetAuthURLParam("client_id", p.clientID),
		oauth2.SetAuthURLParam("client_secret", secret),
		oauth2.SetAuthURLParam("scope", strings.Join(p.scopes, " ")),
	)
	if err != nil {
		return nil, err
	}

	if providers.IDToken(token) == "" {
		return nil, &providers.TokenExchangeError{Reason: "response missing id_token"}
	}

	return token, nil
}

// MapUser builds the normalized user from a token response.
//
// The identity token is decoded and, unless disabled, its signature,
// issuer, audience and expiry are verified against Apple's keys. When the
// context carries a nonce (see providers.WithNonce) the nonce claim must
// match it. The name comes only from the callback's side-channel payload;
// an unparseable payload is logged and treated as absent.
func (p *Provider) MapUser(ctx context.Context, token *oauth2.Token, callback *providers.Callback) (*providers.User, error) {
	idToken := providers.IDToken(token)
	if idToken == "" {
		return nil, &providers.TokenExchangeError{Reason: "response missing id_token"}
	}

	claims, err := DecodeClaims(idToken)
	if err != nil {
		return nil, err
	}

	if p.verifier != nil {
		ctx, cancel := p.ensureContextTimeout(ctx)
		defer cancel()
		if err := p.verifier.Verify(ctx, idToken); err != nil {
			return nil, err
		}
	}

	// SECURITY: Bind the token to this attempt to prevent replay of a token issued elsewhere
	if expected := providers.NonceFromContext(ctx); expected != "" {
		if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(expected)) != 1 {
			return nil, &providers.MalformedIdentityTokenError{Reason: "nonce mismatch"}
		}
	}

	name, err := ReconcileName(callback)
	if err != nil {
		p.logger.Warn("Ignoring unparseable user payload from Apple callback",
			"subject_length", len(claims.Subject),
			"error", err)
		name = ""
	}

	return &providers.User{
		ID:            claims.Subject,
		Name:          name,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		RawClaims:     claims.Raw,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		IDToken:       idToken,
		ExpiresIn:     providers.ExpiresIn(token),
	}, nil
}

// ExchangeAndMapUser handles a callback whose state was already verified by
// the caller: a provider-reported error ends the attempt with
// providers.ErrProviderDenied, otherwise the code is exchanged and mapped.
func (p *Provider) ExchangeAndMapUser(ctx context.Context, callback *providers.Callback) (*providers.User, error) {
	if callback == nil {
		return nil, fmt.Errorf("callback is required")
	}
	if callback.Error != "" {
		return nil, fmt.Errorf("%w: %s", providers.ErrProviderDenied, callback.Error)
	}

	token, err := p.ExchangeCode(ctx, callback.Code)
	if err != nil {
		return nil, err
	}
	return p.MapUser(ctx, token, callback)
}

// RefreshToken validates a refresh token with Apple and returns a new access token.
// Apple does not rotate refresh tokens, so the original refresh token is kept
// on the result when the response omits one.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, &providers.TokenExchangeError{Reason: "refresh token is empty"}
	}

	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	secret, err := p.secrets.ClientSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain client secret: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tokenSource := p.oauth2Config(secret, oauth2.AuthStyleInParams).TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	})

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, providers.ClassifyTokenEndpointError(ctx, err)
	}

	if newToken.RefreshToken == "" {
		newToken.RefreshToken = refreshToken
	}
	return newToken, nil
}

// RevokeToken invalidates an access or refresh token at Apple's revocation endpoint.
func (p *Provider) RevokeToken(ctx context.Context, token, tokenTypeHint string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	secret, err := p.secrets.ClientSecret()
	if err != nil {
		return fmt.Errorf("failed to obtain client secret: %w", err)
	}

	data := url.Values{}
	data.Set("client_id", p.clientID)
	data.Set("client_secret", secret)
	data.Set("token", token)
	if tokenTypeHint != "" {
		data.Set("token_type_hint", tokenTypeHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &providers.TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	// RFC 7009 Section 2.2: 200 is returned for revoked and for already invalid tokens
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxRevokeResponseSize))
		return fmt.Errorf("token revocation failed with status %d: %s", resp.StatusCode, util.SafeTruncate(strings.TrimSpace(string(body)), 256))
	}

	return nil
}

// HealthCheck verifies that Apple's OIDC discovery endpoint is reachable.
//
// Security Considerations:
//   - This method is designed for server-side health monitoring (k8s probes, monitoring systems)
//   - DO NOT expose the returned error messages directly to untrusted clients
func (p *Provider) HealthCheck(ctx context.Context) error {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	doc, err := p.discoveryClient.Discover(ctx, p.issuerURL)
	if err != nil {
		return fmt.Errorf("apple provider unreachable: %w", err)
	}
	if !doc.SupportsResponseMode("form_post") {
		return fmt.Errorf("apple provider does not advertise response_mode=form_post")
	}

	return nil
}
