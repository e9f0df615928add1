// Package apple implements Sign in with Apple as a providers.Provider.
//
// Apple differs from other OpenID Connect providers in a few ways this
// package takes care of:
//   - The callback is delivered with response_mode=form_post, so the redirect
//     URI must accept POST requests.
//   - The user's name is never part of the identity token. Apple posts it as a
//     JSON "user" form field on the first consent only; ReconcileName turns it
//     into a full name and later logins have no name.
//   - The client secret is a short-lived ES256 JWT signed with a key from the
//     Apple developer portal. ClientSecretSigner generates and renews it.
//
// # Usage
//
//	provider, err := apple.NewProvider(&apple.Config{
//	    ClientID:    "com.example.web",
//	    RedirectURL: "https://example.com/auth/apple/callback",
//	    SigningKey: &apple.SigningKey{
//	        TeamID:        "ABCDE12345",
//	        KeyID:         "KEY1234567",
//	        PrivateKeyPEM: p8,
//	    },
//	})
//
//	authURL := provider.AuthorizationURL(state, &providers.AuthOptions{Nonce: nonce})
//
//	// in the callback handler, after the state has been checked
//	user, err := provider.ExchangeAndMapUser(providers.WithNonce(ctx, nonce), callback)
//
// Identity token signatures are verified against Apple's published keys
// unless Config.InsecureSkipSignatureVerification is set.
package apple
