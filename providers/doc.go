// Package providers defines the OAuth provider interface, the normalized user
// record, and the error taxonomy shared by provider implementations.
//
// Implementations are provided in subpackages:
//   - providers/apple: Sign in with Apple
//   - providers/mock: Mock provider for testing
//   - providers/oidc: OIDC discovery and validation utilities
//
// A login attempt is a sequential pipeline:
//
//	Start -> AwaitingCallback -> StateVerified -> TokenExchanged -> ClaimsDecoded -> Mapped
//
// Any step may fail, and every failure is terminal for the attempt:
//   - ErrInvalidState: the echoed state is unknown, expired or bound to another session
//   - *TokenExchangeError: the token endpoint rejected the code or returned an incomplete response
//   - *MalformedIdentityTokenError: the id_token is not a well-formed, trusted token with a subject
//   - *TransportError: the request to the provider did not complete
//
// Example usage:
//
//	provider, err := apple.NewProvider(&apple.Config{
//	    ClientID:    "com.example.web",
//	    RedirectURL: "https://example.com/auth/apple/callback",
//	    SigningKey: &apple.SigningKey{
//	        TeamID:        "TEAMID1234",
//	        KeyID:         "KEYID56789",
//	        PrivateKeyPEM: privateKeyPEM,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	authURL := provider.AuthorizationURL(state, nil)
//	// ... later, on the callback:
//	user, err := provider.ExchangeAndMapUser(ctx, callback)
package providers
