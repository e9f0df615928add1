package oauth

import "net/url"

// Error codes put on the failure redirect. Internal reasons (see
// server.FailureReason) are logged and audited but never shown to users.
const (
	ErrorCodeAuthenticationFailed = "authentication_failed"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
)

// failureRedirect appends error=code to base, keeping any existing query.
func failureRedirect(base, code string) string {
	u, err := url.Parse(base)
	if err != nil {
		return DefaultFailureURL + "?error=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set("error", code)
	u.RawQuery = q.Encode()
	return u.String()
}
