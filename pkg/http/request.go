package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"
)

const (
	maxIPLen        = 45
	maxUserAgentLen = 500
)

// IPConfig holds the parsed trusted proxy ranges
type IPConfig struct {
	trusted []netip.Prefix
}

// NewIPConfig parses CIDR strings; invalid entries are skipped.
func NewIPConfig(trustedProxies []string) *IPConfig {
	cfg := &IPConfig{}
	for _, cidr := range trustedProxies {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		cfg.trusted = append(cfg.trusted, prefix.Masked())
	}
	return cfg
}

// ClientInfo identifies the caller of a request for auditing.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// ExtractClientInfo returns the caller IP and a User-Agent made safe for
// text columns: invalid UTF-8 is replaced, NUL bytes are dropped and the
// result is capped without splitting a character.
func ExtractClientInfo(r *http.Request, config *IPConfig) ClientInfo {
	ua := strings.ToValidUTF8(r.Header.Get("User-Agent"), "\uFFFD")
	ua = strings.ReplaceAll(ua, "\x00", "")
	return ClientInfo{
		IPAddress: ExtractClientIP(r, config),
		UserAgent: capRunes(ua, maxUserAgentLen),
	}
}

// capRunes cuts s to at most max bytes on a rune boundary.
func capRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ExtractClientIP returns the real client address. Forwarding headers are
// honoured only when the direct peer is a trusted proxy. X-Forwarded-For is
// read right to left: trusted hops are skipped and the first untrusted
// address is the client. Entries left of it are client-supplied.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := remoteAddr(r)

	if config == nil || !config.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		var earliest netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				earliest = netip.Addr{}
				break
			}
			if !config.contains(addr) {
				return addr.String()
			}
			earliest = addr
		}
		// every hop is one of ours: the client is internal
		if earliest.IsValid() {
			return earliest.String()
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.String()
		}
	}

	return remoteIP
}

func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if len(host) > maxIPLen {
		host = host[:maxIPLen]
	}
	return host
}

func (c *IPConfig) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return c.contains(addr)
}

func (c *IPConfig) contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
