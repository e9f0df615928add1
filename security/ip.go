package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIPResolver extracts the real client IP address from requests.
//
// SECURITY CONSIDERATIONS:
//   - Only enable TrustProxy when behind a trusted reverse proxy (nginx, haproxy, etc.)
//   - X-Forwarded-For format: "client, proxy1, proxy2, ..."
//   - TrustedProxyCount specifies how many proxies to trust from the right,
//     which prevents X-Forwarded-For spoofing in multi-proxy setups
type ClientIPResolver struct {
	TrustProxy        bool
	TrustedProxyCount int
}

// Resolve returns the client IP of r.
func (c ClientIPResolver) Resolve(r *http.Request) string {
	if c.TrustProxy {
		if ip := extractIPFromXFF(r.Header.Get("X-Forwarded-For"), c.TrustedProxyCount); ip != "" {
			return ip
		}
		if ip := extractIPFromXRealIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return extractIPFromRemoteAddr(r.RemoteAddr)
}

// extractIPFromXFF picks the client entry of an X-Forwarded-For header.
// With trustedProxyCount=2 and "1.2.3.4, untrusted-ip, proxy2-ip" it returns "1.2.3.4".
func extractIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	proxyCount := trustedProxyCount
	if proxyCount <= 0 {
		proxyCount = 1
	}
	clientIndex := len(ips) - proxyCount - 1
	if clientIndex < 0 {
		clientIndex = 0
	}

	clientIP := strings.TrimSpace(ips[clientIndex])
	if net.ParseIP(clientIP) != nil {
		return clientIP
	}
	return ""
}

func extractIPFromXRealIP(xri string) string {
	xri = strings.TrimSpace(xri)
	if net.ParseIP(xri) != nil {
		return xri
	}
	return ""
}

// extractIPFromRemoteAddr returns the IP of the direct connection (a proxy if not trusted).
func extractIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
