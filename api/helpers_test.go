package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/jmcleod/leaddesk/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSummarize(t *testing.T) {
	contact := &storage.Lead{ID: "1", Kind: storage.KindContact, Message: "Need   a\nnew site"}
	assert.Equal(t, "Need a new site", summarize(contact).Preview)

	chatLead := &storage.Lead{ID: "2", Kind: storage.KindChat, Transcript: []storage.Message{
		{Role: "assistant", Content: "Hi!"},
		{Role: "user", Content: strings.Repeat("word ", 50)},
		{Role: "assistant", Content: "Sure"},
	}}
	s := summarize(chatLead)
	assert.Equal(t, 3, s.Turns)
	assert.Equal(t, previewLen, utf8.RuneCountInString(s.Preview))
	assert.True(t, strings.HasSuffix(s.Preview, "…"))
}
