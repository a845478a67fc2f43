package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/leaddesk/chat"
	"github.com/jmcleod/leaddesk/session"
	"github.com/jmcleod/leaddesk/storage"
)

const (
	maxAuthBodySize    = 4 << 10
	maxContactBodySize = 32 << 10
	maxChatBodySize    = 128 << 10
	maxSmallBodySize   = 4 << 10
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeInternalError logs err and sends a generic 500.
func (a *API) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.ErrorContext(r.Context(), msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, msg)
}

func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "lead not found")
	case errors.Is(err, chat.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "chat is temporarily unavailable")
	case errors.Is(err, chat.ErrUpstream):
		a.logger.WarnContext(r.Context(), "chat upstream failure", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "chat provider error")
	case errors.Is(err, session.ErrMissingSecret):
		a.writeInternalError(w, r, "server misconfigured", err)
	default:
		a.writeInternalError(w, r, "internal error", err)
	}
}

// decodeJSON reads a JSON body of at most limit bytes into T. On failure it
// writes a 4xx response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}
