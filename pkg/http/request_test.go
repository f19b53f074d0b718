package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	trusted := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "127.0.0.1/32", "2001:db8::/32", "not-a-cidr"})

	tests := []struct {
		name       string
		config     *pkghttp.IPConfig
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{
			name:       "direct client ignores spoofed headers",
			config:     trusted,
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			xRealIP:    "192.168.1.1",
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy uses rightmost untrusted address",
			config:     trusted,
			remoteAddr: "10.0.0.5:443",
			xff:        "garbage, 198.51.100.7, 10.0.0.1",
			want:       "198.51.100.7",
		},
		{
			name:       "spoofed leftmost entry is ignored",
			config:     trusted,
			remoteAddr: "10.0.0.5:443",
			xff:        "6.6.6.6, 203.0.113.9",
			want:       "203.0.113.9",
		},
		{
			name:       "spoofed entry behind a proxy chain",
			config:     trusted,
			remoteAddr: "10.0.0.5:443",
			xff:        "6.6.6.6, 203.0.113.9, 10.0.0.7",
			want:       "203.0.113.9",
		},
		{
			name:       "all hops trusted returns the earliest",
			config:     trusted,
			remoteAddr: "10.0.0.5:443",
			xff:        "10.1.1.1, 10.0.0.2",
			want:       "10.1.1.1",
		},
		{
			name:       "unparseable hop stops the walk",
			config:     trusted,
			remoteAddr: "10.0.0.5:443",
			xff:        "198.51.100.7, garbage, 10.0.0.2",
			want:       "10.0.0.5",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			config:     trusted,
			remoteAddr: "127.0.0.1:8080",
			xRealIP:    "198.51.100.9",
			want:       "198.51.100.9",
		},
		{
			name:       "ipv6 trusted proxy",
			config:     trusted,
			remoteAddr: "[2001:db8::1]:443",
			xff:        "2001:db8:ffff::42",
			want:       "2001:db8:ffff::42",
		},
		{
			name:       "nil config never trusts headers",
			config:     nil,
			remoteAddr: "10.0.0.5:443",
			xff:        "198.51.100.7",
			want:       "10.0.0.5",
		},
		{
			name:       "empty config never trusts headers",
			config:     pkghttp.NewIPConfig(nil),
			remoteAddr: "127.0.0.1:443",
			xff:        "198.51.100.7",
			want:       "127.0.0.1",
		},
		{
			name:       "remote addr without port",
			config:     trusted,
			remoteAddr: "203.0.113.10",
			want:       "203.0.113.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestExtractClientInfo_CapsUserAgent(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:1"
	req.Header.Set("User-Agent", strings.Repeat("x", 900))

	info := pkghttp.ExtractClientInfo(req, nil)

	assert.Equal(t, "203.0.113.10", info.IPAddress)
	assert.Len(t, info.UserAgent, 500)
}

func TestExtractClientInfo_SanitizesUserAgent(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:1"
	req.Header.Set("User-Agent", "agent\xff\xfe/1.0")

	info := pkghttp.ExtractClientInfo(req, nil)
	assert.True(t, utf8.ValidString(info.UserAgent))
	assert.Equal(t, "agent\uFFFD/1.0", info.UserAgent)

	// a multibyte character straddling the cap is dropped whole
	req.Header.Set("User-Agent", strings.Repeat("x", 499)+"é")
	info = pkghttp.ExtractClientInfo(req, nil)
	assert.True(t, utf8.ValidString(info.UserAgent))
	assert.Equal(t, strings.Repeat("x", 499), info.UserAgent)
}
