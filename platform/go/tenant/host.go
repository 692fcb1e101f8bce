package tenant

import "strings"

// NormalizeHost lowercases the Host header and strips any port suffix.
func NormalizeHost(hostHeader string) string {
	host := strings.TrimSpace(strings.ToLower(hostHeader))
	if host == "" {
		return ""
	}
	// IPv6 literals keep their brackets; everything after "]" is a port.
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end >= 0 {
			return host[:end+1]
		}
		return host
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

// Subdomain returns the first label of host when it carries a subdomain
// segment (at least three labels), and "" otherwise. Hosts like
// "example.com" or "localhost" have no subdomain.
func Subdomain(host string) string {
	if strings.Count(host, ".") < 2 {
		return ""
	}
	label, _, _ := strings.Cut(host, ".")
	return label
}
