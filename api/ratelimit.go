package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jmcleod/leaddesk/metrics"
	"github.com/jmcleod/leaddesk/ratelimit"
)

// retryAfterSeconds is advertised on every 429. It matches the shortest
// window, after which at least one slot has freed up.
const retryAfterSeconds = "60"

// rateLimit rejects requests whose caller key has exhausted the limiter
// returned by pick.
func (a *API) rateLimit(name string, pick func() ratelimit.Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := a.clientIP(r)
			if pick().IsRateLimited(key) {
				metrics.RateLimitRejections.WithLabelValues(name).Inc()
				if name == "login" {
					a.audit.logFailure(AuditLoginRateLimited, r, "rate limited", slog.String("client_ip", key))
				}
				writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", retryAfterSeconds)
	writeError(w, http.StatusTooManyRequests, "too many requests; try again later")
}

func (a *API) clientIP(r *http.Request) string {
	return ClientIP(r, a.trustedProxies)
}

// ClientIP returns the key used to rate limit r.
//
// Forwarding headers (X-Forwarded-For, Forwarded, X-Real-IP) are only
// honoured when the direct peer falls within one of trustedProxies;
// otherwise RemoteAddr is used. When no address can be parsed the shared
// ratelimit.UnknownKey bucket is returned.
//
// Proxies append to X-Forwarded-For and Forwarded, so only the right-hand
// end of either list is trustworthy. Both are walked right to left, skipping
// trusted proxy hops, and the first address outside trustedProxies wins. An
// unparseable hop ends the walk: it and everything left of it came from the
// client.
//
// Priority when proxy headers are trusted:
// 1. X-Forwarded-For
// 2. Forwarded "for=" values
// 3. X-Real-IP
// 4. RemoteAddr
func ClientIP(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	if remoteIP != "" && peerTrusted(remoteIP, trustedProxies) {
		if ip, ok := rightmostUntrusted(forwardedForHops(r.Header), trustedProxies); ok {
			return ip
		}
		if ip, ok := rightmostUntrusted(forwardedHops(r.Header), trustedProxies); ok {
			return ip
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if ip, ok := parseIPCandidate(xrip); ok {
				return ip
			}
		}
	}

	if remoteIP != "" {
		return remoteIP
	}
	return ratelimit.UnknownKey
}

// forwardedForHops returns every X-Forwarded-For entry across all header
// lines, left to right.
func forwardedForHops(h http.Header) []string {
	var hops []string
	for _, line := range h.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(line, ",")...)
	}
	return hops
}

// forwardedHops returns the "for=" value of every Forwarded element, left to
// right. Elements without one are kept as empty hops.
func forwardedHops(h http.Header) []string {
	var hops []string
	for _, line := range h.Values("Forwarded") {
		for _, elem := range strings.Split(line, ",") {
			hop := ""
			for _, param := range strings.Split(elem, ";") {
				param = strings.TrimSpace(param)
				if strings.HasPrefix(strings.ToLower(param), "for=") {
					hop = param[4:]
					break
				}
			}
			hops = append(hops, hop)
		}
	}
	return hops
}

// rightmostUntrusted walks hops from the right and returns the first address
// not covered by trustedProxies. If every parsed hop is trusted, the
// left-most of them is returned.
func rightmostUntrusted(hops []string, trustedProxies []netip.Prefix) (string, bool) {
	var innermost string
	for i := len(hops) - 1; i >= 0; i-- {
		ip, ok := parseIPCandidate(hops[i])
		if !ok {
			break
		}
		if !peerTrusted(ip, trustedProxies) {
			return ip, true
		}
		innermost = ip
	}
	return innermost, innermost != ""
}

func peerTrusted(ip string, trustedProxies []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"")
	if s == "" {
		return "", false
	}

	// RFC 7239 quoted IPv6 may appear as [::1]:1234.
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	// Drop zone if any (e.g. fe80::1%eth0).
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
