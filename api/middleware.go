package api

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type contextKey int

const sessionExpiryKey contextKey = iota

const sessionCookieName = "leaddesk_admin"

// AdminAuth requires a valid session cookie. A missing signing secret is a
// server fault and yields 500 rather than 401.
func (a *API) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.signer.Ready(); err != nil {
			a.mapError(w, r, err)
			return
		}
		expiresAt, ok := a.sessionFromCookie(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), sessionExpiryKey, expiresAt)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFromCookie verifies the session cookie and returns its expiry.
func (a *API) sessionFromCookie(r *http.Request) (time.Time, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return time.Time{}, false
	}
	return a.signer.Expiry(cookie.Value)
}

func (a *API) writeSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
		MaxAge:   int(a.signer.Lifetime().Seconds()),
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func (a *API) secureCookies(r *http.Request) bool {
	return a.cookieSecure || requestIsSecure(r)
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}

func sessionExpiryFromContext(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(sessionExpiryKey).(time.Time)
	return t, ok
}
