package oidc

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/giantswarm/appleid-oauth/internal/util"
)

// clientIDPattern matches Apple Services IDs and bundle identifiers (reverse-DNS style).
var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-_]*$`)

// ValidateIssuerURL validates an OIDC issuer URL with SSRF protection.
// It enforces HTTPS and blocks private IP ranges to prevent Server-Side Request Forgery attacks.
//
// Security Considerations:
//   - HTTPS Enforcement: Prevents credential interception
//   - Private IP Blocking: Prevents SSRF against internal services (Kubernetes API, metadata services, etc.)
//   - Loopback Blocking: Prevents attacks against localhost services
//   - Link-local Blocking: Prevents metadata service attacks (169.254.169.254)
func ValidateIssuerURL(issuerURL string) error {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	// SECURITY: Enforce HTTPS to prevent credential leakage
	if u.Scheme != "https" {
		return fmt.Errorf("issuer URL must use HTTPS, got %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("issuer URL must have a hostname")
	}

	// SECURITY: Block private IP ranges to prevent SSRF
	if util.IsLoopbackHostname(host) {
		return fmt.Errorf("issuer URL must not point to loopback addresses")
	}
	if ip := net.ParseIP(host); ip != nil && util.IsPrivateOrInternal(ip) {
		return fmt.Errorf("issuer URL must not point to %s addresses", util.ClassifyIP(ip))
	}

	return nil
}

// ValidateRedirectURL validates a redirect URI registered with Apple.
// Apple rejects plain HTTP and IP-literal hosts, so these are caught at
// configuration time instead of surfacing as an opaque consent-page error.
func ValidateRedirectURL(redirectURL string) error {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("redirect URL must use HTTPS, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("redirect URL must have a hostname")
	}
	if net.ParseIP(u.Hostname()) != nil || util.IsLoopbackHostname(strings.ToLower(u.Hostname())) {
		return fmt.Errorf("redirect URL must use a domain name, got %q", u.Hostname())
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect URL must not contain a fragment")
	}
	return nil
}

// ValidateClientID validates a client identifier such as "com.example.web".
//
// Security Considerations:
//   - Character Whitelist: Prevents injection into URLs and JWT claims
//   - Length Limit: Prevents DoS via extremely long values
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if len(clientID) > 255 {
		return fmt.Errorf("client ID exceeds maximum length of 255 characters")
	}
	if !clientIDPattern.MatchString(clientID) {
		return fmt.Errorf("client ID contains invalid characters (allowed: a-z, A-Z, 0-9, ., -, _)")
	}
	return nil
}

// ValidateScopes validates OAuth scopes.
//
// Security Considerations:
//   - Array Size Limit: Prevents DoS from excessive scopes
//   - String Length Limit: Prevents memory exhaustion
//   - Empty Scope Detection: Prevents malformed requests
func ValidateScopes(scopes []string) error {
	if len(scopes) > 50 {
		return fmt.Errorf("too many scopes (max 50, got %d)", len(scopes))
	}

	for i, scope := range scopes {
		if scope == "" {
			return fmt.Errorf("scope at index %d is empty", i)
		}
		if len(scope) > 256 {
			return fmt.Errorf("scope at index %d exceeds maximum length of 256 characters", i)
		}
		if strings.ContainsAny(scope, " \t\r\n") {
			return fmt.Errorf("scope at index %d contains whitespace", i)
		}
	}

	return nil
}
