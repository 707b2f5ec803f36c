package httputil

import (
	"net/http"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		xff, xri   string
		remoteAddr string
		want       string
	}{
		{name: "ipv4 remote", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "ipv6 remote", remoteAddr: "[::1]:12345", want: "::1"},
		{name: "remote without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{name: "headers ignored without trust", xff: "1.2.3.4", xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", want: "10.0.0.1"},

		{name: "first forwarded entry", trustProxy: true, xff: "1.2.3.4, 10.0.0.2, 10.0.0.3", remoteAddr: "10.0.0.1:1234", want: "1.2.3.4"},
		{name: "forwarded entry trimmed", trustProxy: true, xff: "  1.2.3.4 ,10.0.0.2", remoteAddr: "10.0.0.1:1234", want: "1.2.3.4"},
		{name: "forwarded beats real ip", trustProxy: true, xff: "1.2.3.4", xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", want: "1.2.3.4"},
		{name: "real ip", trustProxy: true, xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", want: "5.6.7.8"},
		{name: "mapped ipv4 unmapped", trustProxy: true, xff: "::ffff:1.2.3.4", remoteAddr: "10.0.0.1:1234", want: "1.2.3.4"},
		{name: "garbage forwarded falls through", trustProxy: true, xff: "not-an-ip", xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", want: "5.6.7.8"},
		{name: "garbage everywhere", trustProxy: true, xff: "evil", xri: "also-evil", remoteAddr: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "no headers", trustProxy: true, remoteAddr: "10.0.0.1:1234", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
