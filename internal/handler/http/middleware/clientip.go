package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"usic-gateway/pkg/ratelimit"
)

// TrustedProxyConfig holds configuration for validating trusted reverse proxies.
// When enabled, forwarding headers are honored only for requests whose
// RemoteAddr falls inside AllowedCIDRs.
type TrustedProxyConfig struct {
	Enabled bool

	// AllowedCIDRs lists trusted proxy ranges. Single IPs become /32 or /128.
	AllowedCIDRs []netip.Prefix

	// RealIPHeader is consulted when X-Forwarded-For is absent.
	// Default: X-Real-IP
	RealIPHeader string
}

// IsTrusted checks if the given RemoteAddr belongs to a trusted proxy.
func (c *TrustedProxyConfig) IsTrusted(remoteAddr string) bool {
	ip, err := extractIPFromAddr(remoteAddr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range c.AllowedCIDRs {
		if prefix.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies turns a list of IPs or CIDR ranges into prefixes.
// Any invalid entry fails the whole list.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			ip, ipErr := netip.ParseAddr(entry)
			if ipErr != nil {
				return nil, fmt.Errorf("invalid IP or CIDR format '%s': must be valid IP address or CIDR notation (e.g., '192.168.1.1' or '10.0.0.0/8')", entry)
			}
			prefix = netip.PrefixFrom(ip, ip.BitLen())
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

// ClientIdentifier derives the rate-limit client identifier from the
// originating network address of a request.
type ClientIdentifier struct {
	config TrustedProxyConfig
}

// NewClientIdentifier creates a ClientIdentifier. Enabling proxy trust
// without any trusted range is an error.
func NewClientIdentifier(config TrustedProxyConfig) (*ClientIdentifier, error) {
	if config.Enabled && len(config.AllowedCIDRs) == 0 {
		return nil, fmt.Errorf("proxy trust is enabled but no trusted proxies are configured")
	}
	if config.RealIPHeader == "" {
		config.RealIPHeader = "X-Real-IP"
	}
	return &ClientIdentifier{config: config}, nil
}

// Identify returns the client IP, or ratelimit.UnknownClient when no
// address can be determined. Every caller without an address shares
// that one counter.
func (c *ClientIdentifier) Identify(r *http.Request) string {
	ip, err := c.ExtractIP(r)
	if err != nil || ip == "" {
		slog.Debug("client address unavailable",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Any("error", err))
		return ratelimit.UnknownClient
	}
	return ip
}

// ExtractIP extracts the client IP address.
//
// Without proxy trust, or for peers outside the trusted ranges, only
// RemoteAddr is used so that clients cannot rotate their apparent address
// with spoofed headers. Trusted peers are asked for the first
// X-Forwarded-For entry, then the real-IP header, then RemoteAddr.
func (c *ClientIdentifier) ExtractIP(r *http.Request) (string, error) {
	if !c.config.Enabled {
		return extractIPFromAddr(r.RemoteAddr)
	}

	if !c.config.IsTrusted(r.RemoteAddr) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			slog.Warn("untrusted proxy attempting to set X-Forwarded-For",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("x_forwarded_for", xff),
			)
		}
		return extractIPFromAddr(r.RemoteAddr)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip, nil
		}
	}
	if xri := strings.TrimSpace(r.Header.Get(c.config.RealIPHeader)); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String(), nil
		}
	}
	return extractIPFromAddr(r.RemoteAddr)
}

// extractIPFromAddr extracts the IP address from a "host:port" or "IP" string.
//
// Examples:
//   - "192.168.1.1:8080" → "192.168.1.1", nil
//   - "[2001:db8::1]:8080" → "2001:db8::1", nil
//   - "127.0.0.1" → "127.0.0.1", nil (no port)
func extractIPFromAddr(addr string) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		if ip := net.ParseIP(addr); ip != nil {
			return ip.String(), nil
		}
		return "", fmt.Errorf("invalid address format: %q", addr)
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	return "", fmt.Errorf("invalid address format: %q", addr)
}

// parseFirstIP returns the first entry of an X-Forwarded-For list when it
// is a valid IP, or "".
func parseFirstIP(s string) string {
	first, _, _ := strings.Cut(s, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return ""
}
