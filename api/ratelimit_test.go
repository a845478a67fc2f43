package api

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/leaddesk/ratelimit"
)

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("fd00::/8"),
	}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		proxies    []netip.Prefix
		want       string
	}{
		{name: "remote ipv4", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "remote ipv6", remoteAddr: "[::1]:8080", want: "::1"},
		{name: "ipv4-mapped ipv6 unmapped", remoteAddr: "[::ffff:192.0.2.1]:80", want: "192.0.2.1"},
		{
			name:       "headers ignored without trusted proxies",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.25"},
			want:       "10.0.0.1",
		},
		{
			name:       "untrusted peer cannot spoof",
			remoteAddr: "192.168.1.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.25", "X-Real-IP": "198.51.100.26"},
			proxies:    trusted,
			want:       "192.168.1.1",
		},
		{
			name:       "trusted proxy xff rightmost wins",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "unknown, 198.51.100.25, 203.0.113.9"},
			proxies:    trusted,
			want:       "203.0.113.9",
		},
		{
			name:       "client-supplied xff prefix is ignored",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.9"},
			proxies:    trusted,
			want:       "203.0.113.9",
		},
		{
			name:       "trusted hops are skipped",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.9, 10.0.0.7, fd00::2"},
			proxies:    trusted,
			want:       "203.0.113.9",
		},
		{
			name:       "unparseable hop stops the walk",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, garbage"},
			proxies:    trusted,
			want:       "10.0.0.1",
		},
		{
			name:       "all hops trusted picks the innermost",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.5, 10.0.0.6"},
			proxies:    trusted,
			want:       "10.0.0.5",
		},
		{
			name:       "forwarded header rightmost wins",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"Forwarded": `for=1.1.1.1, for=203.0.113.9;proto=https, for=10.0.0.3`},
			proxies:    trusted,
			want:       "203.0.113.9",
		},
		{
			name:       "trusted proxy forwarded header",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"Forwarded": `for="[2001:db8::1]:4711";proto=https`},
			proxies:    trusted,
			want:       "2001:db8::1",
		},
		{
			name:       "trusted proxy x-real-ip",
			remoteAddr: "[fd00::1]:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.11"},
			proxies:    trusted,
			want:       "203.0.113.11",
		},
		{
			name:       "trusted proxy garbage headers fall back to remote",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "nope", "X-Real-IP": "also-nope"},
			proxies:    trusted,
			want:       "10.0.0.1",
		},
		{name: "unparseable remote uses shared bucket", remoteAddr: "not-a-hostport", want: ratelimit.UnknownKey},
		{name: "empty remote uses shared bucket", remoteAddr: "", want: ratelimit.UnknownKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: make(http.Header)}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.proxies))
		})
	}
}

type countingChecker struct {
	budget int
	seen   map[string]int
}

func (c *countingChecker) IsRateLimited(key string) bool {
	if c.seen == nil {
		c.seen = make(map[string]int)
	}
	if c.seen[key] >= c.budget {
		return true
	}
	c.seen[key]++
	return false
}

func TestRateLimitMiddleware(t *testing.T) {
	checker := &countingChecker{budget: 2}
	a := New(nil, nil, AdminCredentials{}, WithLogger(discardLogger()))
	h := a.rateLimit("contact", func() ratelimit.Checker { return checker })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) }))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/contact", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusAccepted, do("203.0.113.1:1000").Code)
	assert.Equal(t, http.StatusAccepted, do("203.0.113.1:1001").Code)

	rec := do("203.0.113.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests; try again later"}`, rec.Body.String())

	assert.Equal(t, http.StatusAccepted, do("203.0.113.2:1000").Code, "other callers are unaffected")
	assert.Equal(t, 2, checker.seen["203.0.113.1"], "the port is not part of the key")
}

func TestRateLimitMiddleware_SpoofedForwardedForSharesBucket(t *testing.T) {
	checker := &countingChecker{budget: 2}
	a := New(nil, nil, AdminCredentials{},
		WithLogger(discardLogger()),
		WithTrustedProxies([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}))
	h := a.rateLimit("login", func() ratelimit.Checker { return checker })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	codes := make([]int, 0, 3)
	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		req.RemoteAddr = "10.0.0.1:443"
		req.Header.Set("X-Forwarded-For", spoofed+", 203.0.113.9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Equal(t, map[string]int{"203.0.113.9": 2}, checker.seen)
}
