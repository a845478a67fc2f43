package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/jmcleod/leaddesk/internal/util"
	"github.com/jmcleod/leaddesk/metrics"
)

// Login handles POST /admin/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	// A missing signing secret must surface before any credential check so
	// it is never mistaken for a bad password.
	if err := a.signer.Ready(); err != nil {
		metrics.AdminLogins.WithLabelValues("error").Inc()
		a.mapError(w, r, err)
		return
	}

	valid, err := a.checkCredentials(req.Username, req.Password)
	if err != nil {
		metrics.AdminLogins.WithLabelValues("error").Inc()
		a.writeInternalError(w, r, "server misconfigured", err)
		return
	}
	if !valid {
		metrics.AdminLogins.WithLabelValues("failure").Inc()
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials",
			slog.String("client_ip", a.clientIP(r)))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := a.signer.IssueWithExpiry()
	if err != nil {
		metrics.AdminLogins.WithLabelValues("error").Inc()
		a.mapError(w, r, err)
		return
	}
	a.writeSessionCookie(w, r, token, expiresAt)
	a.writeCSRFCookie(w, r, expiresAt)

	metrics.AdminLogins.WithLabelValues("success").Inc()
	a.audit.log(AuditLoginSuccess, r, slog.String("client_ip", a.clientIP(r)))
	writeJSON(w, http.StatusOK, SessionResponse{Authenticated: true, ExpiresAt: &expiresAt})
}

// checkCredentials compares username and password against the configured
// admin account. The password hash is always evaluated so that a wrong
// username costs the same as a wrong password.
func (a *API) checkCredentials(username, password string) (bool, error) {
	want := sha256.Sum256([]byte(a.admin.Username))
	got := sha256.Sum256([]byte(username))
	userOK := subtle.ConstantTimeCompare(want[:], got[:]) == 1

	passOK, err := util.VerifyPassword(password, a.admin.PasswordHash)
	if err != nil {
		return false, err
	}
	return userOK && passOK && a.admin.Username != "", nil
}

// Logout handles POST /admin/logout. It always succeeds, with or without a
// session.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.sessionFromCookie(r); ok {
		a.audit.log(AuditLogout, r)
	}
	a.clearSessionCookie(w, r)
	a.clearCSRFCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /admin/session.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	if err := a.signer.Ready(); err != nil {
		a.mapError(w, r, err)
		return
	}
	expiresAt, ok := a.sessionFromCookie(r)
	if !ok {
		writeJSON(w, http.StatusOK, SessionResponse{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Authenticated: true, ExpiresAt: &expiresAt})
}
