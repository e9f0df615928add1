package server

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// MaxStateLength bounds callback state values before they reach storage
	MaxStateLength = 512

	// MaxReturnToLength bounds stored return paths
	MaxReturnToLength = 2048
)

// validateStateParameter rejects callback states that cannot have been issued by this server
func validateStateParameter(state string) error {
	if state == "" {
		return fmt.Errorf("state parameter is required")
	}
	if len(state) > MaxStateLength {
		return fmt.Errorf("state parameter exceeds %d characters", MaxStateLength)
	}
	return nil
}

// isSafeReturnPath reports whether returnTo is a local absolute path that
// cannot be turned into an open redirect.
//
// Rejected:
//   - absolute URLs and scheme-relative URLs ("//evil.example")
//   - backslashes, which some browsers treat as slashes ("/\evil.example")
//   - control characters
func isSafeReturnPath(returnTo string) bool {
	if returnTo == "" || len(returnTo) > MaxReturnToLength {
		return false
	}
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		return false
	}
	if strings.ContainsAny(returnTo, "\\") {
		return false
	}
	for _, r := range returnTo {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	u, err := url.Parse(returnTo)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

// resolveReturnTo returns returnTo if it is a safe local path, otherwise the configured default
func (s *Server) resolveReturnTo(returnTo string) string {
	if isSafeReturnPath(returnTo) {
		return returnTo
	}
	if returnTo != "" {
		s.Logger.Warn("Ignoring unsafe return path", "length", len(returnTo))
	}
	return s.Config.DefaultReturnTo
}
