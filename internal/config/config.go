// Package config loads the demo service configuration from environment variables.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/giantswarm/appleid-oauth/providers/apple"
	"github.com/giantswarm/appleid-oauth/security"
	"github.com/giantswarm/appleid-oauth/storage/valkey"
)

// encryptionKeyInfo separates the storage key from other keys derived from ENCRYPTION_SECRET
const encryptionKeyInfo = "appleid-oauth storage"

// Config holds everything cmd/appleid-demo needs to run
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	ClientID       string        `env:"APPLE_CLIENT_ID,required"`
	ClientSecret   string        `env:"APPLE_CLIENT_SECRET"`
	TeamID         string        `env:"APPLE_TEAM_ID"`
	KeyID          string        `env:"APPLE_KEY_ID"`
	PrivateKey     string        `env:"APPLE_PRIVATE_KEY"`
	PrivateKeyFile string        `env:"APPLE_PRIVATE_KEY_FILE"`
	SecretTTL      time.Duration `env:"APPLE_CLIENT_SECRET_TTL" envDefault:"24h"`
	RedirectURL    string        `env:"APPLE_REDIRECT_URL,required"`
	Scopes         []string      `env:"APPLE_SCOPES" envSeparator:"," envDefault:"name,email"`
	RequestTimeout time.Duration `env:"APPLE_REQUEST_TIMEOUT" envDefault:"10s"`

	StateTTL   time.Duration `env:"STATE_TTL" envDefault:"10m"`
	SuccessURL string        `env:"SUCCESS_URL"`
	FailureURL string        `env:"FAILURE_URL" envDefault:"/login"`

	ValkeyAddr     string `env:"VALKEY_ADDR"`
	ValkeyPassword string `env:"VALKEY_PASSWORD"`
	ValkeyDB       int    `env:"VALKEY_DB" envDefault:"0"`
	ValkeyTLS      bool   `env:"VALKEY_TLS"`
	ValkeyPrefix   string `env:"VALKEY_KEY_PREFIX" envDefault:"appleid:"`

	// EncryptionSecret enables AES-GCM encryption of stored records when set
	EncryptionSecret string `env:"ENCRYPTION_SECRET"`

	RateLimit         float64 `env:"RATE_LIMIT" envDefault:"5"`
	RateLimitBurst    int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
	TrustProxy        bool    `env:"TRUST_PROXY"`
	TrustedProxyCount int     `env:"TRUSTED_PROXY_COUNT" envDefault:"1"`

	AuditLogging bool   `env:"AUDIT_LOGGING" envDefault:"true"`
	Tracing      bool   `env:"TRACING"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom is Load with the environment given as a map
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that exactly one way of obtaining the client secret is configured.
func (c *Config) Validate() error {
	signing := c.TeamID != "" || c.KeyID != "" || c.PrivateKey != "" || c.PrivateKeyFile != ""

	switch {
	case c.ClientSecret != "" && signing:
		return fmt.Errorf("APPLE_CLIENT_SECRET cannot be combined with signing key settings")
	case c.ClientSecret == "" && !signing:
		return fmt.Errorf("either APPLE_CLIENT_SECRET or APPLE_TEAM_ID, APPLE_KEY_ID and a private key are required")
	case signing && (c.TeamID == "" || c.KeyID == ""):
		return fmt.Errorf("APPLE_TEAM_ID and APPLE_KEY_ID are required with a signing key")
	case signing && (c.PrivateKey == "") == (c.PrivateKeyFile == ""):
		return fmt.Errorf("set exactly one of APPLE_PRIVATE_KEY and APPLE_PRIVATE_KEY_FILE")
	}

	if c.EncryptionSecret != "" && len(c.EncryptionSecret) < 16 {
		return fmt.Errorf("ENCRYPTION_SECRET must be at least 16 characters")
	}
	return nil
}

// AppleConfig builds the provider configuration, reading the private key file if needed.
func (c *Config) AppleConfig() (*apple.Config, error) {
	cfg := &apple.Config{
		ClientID:       c.ClientID,
		ClientSecret:   c.ClientSecret,
		RedirectURL:    c.RedirectURL,
		Scopes:         c.Scopes,
		RequestTimeout: c.RequestTimeout,
	}

	if c.ClientSecret != "" {
		return cfg, nil
	}

	keyPEM := []byte(c.PrivateKey)
	if c.PrivateKeyFile != "" {
		var err error
		keyPEM, err = os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
	}

	cfg.SigningKey = &apple.SigningKey{
		TeamID:        c.TeamID,
		KeyID:         c.KeyID,
		PrivateKeyPEM: keyPEM,
		TTL:           c.SecretTTL,
	}
	return cfg, nil
}

// ValkeyConfig returns the Valkey store configuration, or nil when no
// address is set and the in-memory store should be used.
func (c *Config) ValkeyConfig() *valkey.Config {
	if c.ValkeyAddr == "" {
		return nil
	}
	cfg := &valkey.Config{
		Address:   c.ValkeyAddr,
		Password:  c.ValkeyPassword,
		DB:        c.ValkeyDB,
		KeyPrefix: c.ValkeyPrefix,
	}
	if c.ValkeyTLS {
		cfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return cfg
}

// Encryptor derives the storage encryptor from EncryptionSecret.
// Without a secret it returns a disabled encryptor.
func (c *Config) Encryptor() (*security.Encryptor, error) {
	if c.EncryptionSecret == "" {
		return security.NewEncryptor(nil)
	}
	key, err := security.DeriveKey([]byte(c.EncryptionSecret), encryptionKeyInfo)
	if err != nil {
		return nil, err
	}
	return security.NewEncryptor(key)
}
