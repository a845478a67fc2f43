package api

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/leaddesk/storage"
)

const previewLen = 140

// ListLeads handles GET /admin/leads.
func (a *API) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseLeadFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid kind or status filter")
		return
	}
	leads, err := a.leads.List(r.Context(), filter)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	limit, offset := parsePagination(r)
	start, end, meta := paginateSlice(len(leads), limit, offset)
	summaries := make([]LeadSummary, 0, end-start)
	for _, l := range leads[start:end] {
		summaries = append(summaries, summarize(l))
	}
	writeJSON(w, http.StatusOK, ListLeadsResponse{Leads: summaries, PaginationMeta: meta})
}

// GetLead handles GET /admin/leads/{leadID}.
func (a *API) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := a.leads.Get(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// UpdateLead handles PATCH /admin/leads/{leadID}.
func (a *API) UpdateLead(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UpdateLeadRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be one of new, reviewed, archived")
		return
	}

	leadID := chi.URLParam(r, "leadID")
	lead, err := a.leads.Get(r.Context(), leadID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	previous := lead.Status
	lead.Status = req.Status
	lead.UpdatedAt = a.now().UTC()
	if err := a.leads.Put(r.Context(), lead); err != nil {
		a.mapError(w, r, err)
		return
	}

	a.audit.logLead(AuditLeadUpdated, r, leadID,
		slog.String("from", string(previous)), slog.String("to", string(req.Status)))
	writeJSON(w, http.StatusOK, lead)
}

// DeleteLead handles DELETE /admin/leads/{leadID}.
func (a *API) DeleteLead(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	if err := a.leads.Delete(r.Context(), leadID); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.audit.logLead(AuditLeadDeleted, r, leadID)
	w.WriteHeader(http.StatusNoContent)
}

func summarize(l *storage.Lead) LeadSummary {
	s := LeadSummary{
		ID:        l.ID,
		Kind:      l.Kind,
		Status:    l.Status,
		Name:      l.Name,
		Email:     l.Email,
		Company:   l.Company,
		Turns:     len(l.Transcript),
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	text := l.Message
	if text == "" {
		for _, m := range l.Transcript {
			if m.Role == "user" {
				text = m.Content
				break
			}
		}
	}
	s.Preview = truncate(strings.Join(strings.Fields(text), " "), previewLen)
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
