package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jmcleod/leaddesk/chat"
	"github.com/jmcleod/leaddesk/metrics"
	"github.com/jmcleod/leaddesk/storage"
)

// maxStoredTurns bounds the transcript kept for one conversation.
const maxStoredTurns = 200

// Chat handles POST /chat. A request without a known session_id starts a new
// conversation, which counts against the caller's daily session budget.
func (a *API) Chat(w http.ResponseWriter, r *http.Request) {
	if a.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not enabled")
		return
	}
	req, ok := decodeJSON[ChatRequest](w, r, maxChatBodySize)
	if !ok {
		return
	}

	history := make([]chat.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, chat.Message{Role: m.Role, Content: m.Content})
	}
	history = chat.TrimHistory(history, a.maxHistoryMsgs, a.maxHistoryChars)
	if len(history) == 0 || history[len(history)-1].Role != chat.RoleUser {
		writeError(w, http.StatusBadRequest, "conversation must end with a user message")
		return
	}

	ctx := r.Context()
	clientIP := a.clientIP(r)

	lead, err := a.existingConversation(r, req.SessionID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	isNew := lead == nil
	if isNew {
		if a.limiters.ChatSessions.IsRateLimited(clientIP) {
			metrics.RateLimitRejections.WithLabelValues("chat_sessions").Inc()
			writeRateLimited(w)
			return
		}
		lead = &storage.Lead{
			ID:        a.newID(),
			Kind:      storage.KindChat,
			Status:    storage.StatusNew,
			SourceIP:  clientIP,
			CreatedAt: a.now().UTC(),
		}
	}

	reply, err := a.chat.Complete(ctx, a.prompts.Prompt(), history)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	now := a.now().UTC()
	lead.Transcript = append(lead.Transcript,
		storage.Message{Role: chat.RoleUser, Content: history[len(history)-1].Content, At: now},
		storage.Message{Role: chat.RoleAssistant, Content: reply, At: now},
	)
	if len(lead.Transcript) > maxStoredTurns {
		lead.Transcript = lead.Transcript[len(lead.Transcript)-maxStoredTurns:]
	}
	lead.UpdatedAt = now

	foundEmail := false
	if lead.Email == "" {
		if email := chat.ExtractEmail(history); email != "" {
			lead.Email = email
			foundEmail = true
		}
	}

	// The visitor still gets the reply when persisting fails.
	if err := a.leads.Put(ctx, lead); err != nil {
		a.logger.ErrorContext(ctx, "storing chat transcript", slog.String("lead_id", lead.ID), slog.Any("error", err))
	} else {
		if isNew {
			metrics.LeadsCaptured.WithLabelValues(string(storage.KindChat)).Inc()
		}
		if foundEmail {
			a.notify(ctx, lead)
		}
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID: lead.ID,
		Reply:     ChatMessage{Role: chat.RoleAssistant, Content: reply},
	})
}

// existingConversation loads the chat lead for sessionID. It returns nil
// when sessionID is empty or unknown, so that made-up IDs start a new,
// budgeted conversation.
func (a *API) existingConversation(r *http.Request, sessionID string) (*storage.Lead, error) {
	if sessionID == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, nil
	}
	lead, err := a.leads.Get(r.Context(), sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lead.Kind != storage.KindChat {
		return nil, nil
	}
	return lead, nil
}
