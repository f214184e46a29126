package middleware

import (
	"net"
	"net/http"
	"strings"
)

const hstsValue = "max-age=31536000; includeSubDomains"

// HSTS tells browsers to reach the API over HTTPS only, for one year and
// including subdomains. Mount it only when the server terminates TLS itself.
func HSTS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", hstsValue)
		next.ServeHTTP(w, r)
	})
}

// IsHostAllowed reports whether host names one of allowedHosts. Ports are
// ignored on both sides, and IPv6 literals match with or without brackets.
// An empty list allows every host.
func IsHostAllowed(host string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}

	name := HostName(host)
	for _, allowed := range allowedHosts {
		if a := HostName(allowed); a != "" && a == name {
			return true
		}
	}
	return false
}

// HostName lowercases host and strips its port and IPv6 brackets:
// "[::1]:8080" becomes "::1", "API.example.com:443" becomes "api.example.com".
func HostName(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if name, _, err := net.SplitHostPort(host); err == nil {
		return name
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
