package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmcleod/leaddesk/internal/util"
	leadmail "github.com/jmcleod/leaddesk/mail"
	"github.com/jmcleod/leaddesk/metrics"
	"github.com/jmcleod/leaddesk/storage"
)

const (
	maxContactMessageLen = 5000
	maxContactFieldLen   = 200
	notifyTimeout        = 30 * time.Second
)

// SubmitContact handles POST /contact.
func (a *API) SubmitContact(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ContactRequest](w, r, maxContactBodySize)
	if !ok {
		return
	}
	req, err := normalizeContact(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := a.now().UTC()
	lead := &storage.Lead{
		ID:        a.newID(),
		Kind:      storage.KindContact,
		Status:    storage.StatusNew,
		Name:      req.Name,
		Email:     req.Email,
		Company:   req.Company,
		Phone:     req.Phone,
		Message:   req.Message,
		SourceIP:  a.clientIP(r),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.leads.Put(r.Context(), lead); err != nil {
		a.mapError(w, r, err)
		return
	}
	metrics.ContactSubmissions.Inc()
	metrics.LeadsCaptured.WithLabelValues(string(storage.KindContact)).Inc()

	a.notify(r.Context(), lead)
	writeJSON(w, http.StatusAccepted, ContactResponse{ID: lead.ID})
}

func normalizeContact(req ContactRequest) (ContactRequest, error) {
	req.Name = util.Normalize(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = util.Normalize(req.Company)
	req.Phone = util.Normalize(req.Phone)
	req.Message = util.Normalize(req.Message)

	switch {
	case req.Name == "":
		return req, fmt.Errorf("name is required")
	case req.Email == "":
		return req, fmt.Errorf("email is required")
	case req.Message == "":
		return req, fmt.Errorf("message is required")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return req, fmt.Errorf("email is invalid")
	}
	for field, v := range map[string]string{"name": req.Name, "email": req.Email, "company": req.Company, "phone": req.Phone} {
		if utf8.RuneCountInString(v) > maxContactFieldLen {
			return req, fmt.Errorf("%s must be at most %d characters", field, maxContactFieldLen)
		}
	}
	if utf8.RuneCountInString(req.Message) > maxContactMessageLen {
		return req, fmt.Errorf("message must be at most %d characters", maxContactMessageLen)
	}
	return req, nil
}

// notify mails a new-lead notification. Failures are logged; the lead is
// already stored.
func (a *API) notify(ctx context.Context, lead *storage.Lead) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	n, err := leadmail.NewLeadNotification(lead)
	if err != nil {
		a.logger.Error("rendering lead notification", slog.String("lead_id", lead.ID), slog.Any("error", err))
		return
	}
	if err := a.mailer.Send(ctx, n.Subject, n.Body); err != nil {
		a.logger.Warn("lead notification not delivered", slog.String("lead_id", lead.ID), slog.Any("error", err))
	}
}
