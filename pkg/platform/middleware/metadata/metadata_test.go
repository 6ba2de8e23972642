package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"certportal/pkg/requestcontext"
)

func TestHandler_ClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		trusted    []netip.Prefix
		remoteAddr string
		headers    map[string]string
		expectedIP string
	}{
		{
			name:       "no trusted proxies ignores X-Forwarded-For",
			remoteAddr: "192.168.1.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			expectedIP: "192.168.1.1",
		},
		{
			name:       "trusted proxy uses first X-Forwarded-For hop",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:443",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			expectedIP: "203.0.113.1",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:443",
			headers:    map[string]string{"X-Real-IP": "203.0.113.2"},
			expectedIP: "203.0.113.2",
		},
		{
			name:       "garbage forwarded address falls back to peer",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:443",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			expectedIP: "10.0.0.5",
		},
		{
			name:       "IPv6 peer",
			remoteAddr: "[::1]:8080",
			expectedIP: "::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := NewMiddleware(tt.trusted).Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = requestcontext.ClientIP(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.expectedIP, got)
		})
	}
}

func TestDeviceName(t *testing.T) {
	assert.Equal(t, "Unknown Device", DeviceName(""))

	chrome := DeviceName("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Contains(t, chrome, "Chrome")
	assert.Contains(t, chrome, " on ")

	iphone := DeviceName("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	assert.Contains(t, iphone, "iPhone")
}
