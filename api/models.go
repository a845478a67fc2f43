package api

import (
	"time"

	"github.com/jmcleod/leaddesk/storage"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ContactRequest is the JSON body for POST /contact.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
}

// ContactResponse is returned from POST /contact.
type ContactResponse struct {
	ID string `json:"id"`
}

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the JSON body for POST /chat. SessionID is empty for the
// first message of a conversation.
type ChatRequest struct {
	SessionID string        `json:"session_id,omitempty"`
	Messages  []ChatMessage `json:"messages"`
}

// ChatResponse is returned from POST /chat.
type ChatResponse struct {
	SessionID string      `json:"session_id"`
	Reply     ChatMessage `json:"reply"`
}

// LoginRequest is the JSON body for POST /admin/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse is returned from POST /admin/login and GET /admin/session.
type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// LeadSummary is a lead without its transcript, used in list responses.
type LeadSummary struct {
	ID        string             `json:"id"`
	Kind      storage.LeadKind   `json:"kind"`
	Status    storage.LeadStatus `json:"status"`
	Name      string             `json:"name,omitempty"`
	Email     string             `json:"email,omitempty"`
	Company   string             `json:"company,omitempty"`
	Preview   string             `json:"preview,omitempty"`
	Turns     int                `json:"turns,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ListLeadsResponse is returned from GET /admin/leads.
type ListLeadsResponse struct {
	Leads []LeadSummary `json:"leads"`
	PaginationMeta
}

// UpdateLeadRequest is the JSON body for PATCH /admin/leads/{leadID}.
type UpdateLeadRequest struct {
	Status storage.LeadStatus `json:"status"`
}
