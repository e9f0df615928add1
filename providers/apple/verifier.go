package apple

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/giantswarm/appleid-oauth/providers"
)

// IDTokenVerifier checks identity token signatures against Apple's published
// JSON Web Key Set, together with issuer, audience and expiry.
// Keys are fetched lazily and cached by the underlying key set.
type IDTokenVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewIDTokenVerifier creates a verifier for tokens issued to clientID.
// now may be nil to use the current time.
func NewIDTokenVerifier(httpClient *http.Client, issuer, jwksURL, clientID string, now func() time.Time) *IDTokenVerifier {
	// The key set keeps this context for background key fetches, so it must
	// not be tied to a single request.
	keyCtx := context.Background()
	if httpClient != nil {
		keyCtx = oidc.ClientContext(keyCtx, httpClient)
	}
	keySet := oidc.NewRemoteKeySet(keyCtx, jwksURL)

	return &IDTokenVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{
			ClientID:             clientID,
			SupportedSigningAlgs: []string{oidc.RS256},
			Now:                  now,
		}),
	}
}

// Verify validates rawIDToken. Failures to reach the key endpoint are
// reported as *providers.TransportError, everything else as
// *providers.MalformedIdentityTokenError.
func (v *IDTokenVerifier) Verify(ctx context.Context, rawIDToken string) error {
	if _, err := v.verifier.Verify(ctx, rawIDToken); err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return &providers.TransportError{Err: err}
		}
		return &providers.MalformedIdentityTokenError{Reason: "verification failed", Err: err}
	}
	return nil
}
