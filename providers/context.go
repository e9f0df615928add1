package providers

import "context"

type nonceContextKey struct{}

// WithNonce returns a context carrying the nonce that was sent with the
// authorization request. MapUser implementations compare it against the
// identity token's nonce claim.
func WithNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, nonceContextKey{}, nonce)
}

// NonceFromContext returns the expected nonce, or "" when none was issued.
func NonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceContextKey{}).(string)
	return nonce
}
