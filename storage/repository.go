// Package storage provides the persistence layer for captured leads.
package storage

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = errors.New("lead not found")

// LeadKind identifies which funnel produced a lead.
type LeadKind string

const (
	KindContact LeadKind = "contact"
	KindChat    LeadKind = "chat"
)

// LeadStatus tracks admin review progress.
type LeadStatus string

const (
	StatusNew      LeadStatus = "new"
	StatusReviewed LeadStatus = "reviewed"
	StatusArchived LeadStatus = "archived"
)

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	switch s {
	case StatusNew, StatusReviewed, StatusArchived:
		return true
	}
	return false
}

// Valid reports whether k is a known kind.
func (k LeadKind) Valid() bool {
	return k == KindContact || k == KindChat
}

// Message is a single chat turn.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at,omitempty"`
}

// Lead is a contact-form submission or a chat conversation.
type Lead struct {
	ID         string     `json:"id"`
	Kind       LeadKind   `json:"kind"`
	Status     LeadStatus `json:"status"`
	Name       string     `json:"name,omitempty"`
	Email      string     `json:"email,omitempty"`
	Company    string     `json:"company,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	Message    string     `json:"message,omitempty"`
	Transcript []Message  `json:"transcript,omitempty"`
	SourceIP   string     `json:"source_ip,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of l.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	cp := *l
	if l.Transcript != nil {
		cp.Transcript = append([]Message(nil), l.Transcript...)
	}
	return &cp
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Kind   LeadKind
	Status LeadStatus
}

// Match reports whether l satisfies the filter.
func (f Filter) Match(l *Lead) bool {
	if f.Kind != "" && l.Kind != f.Kind {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	return true
}

// Repository defines the interface for lead storage. Put creates or
// replaces a lead by ID. List returns leads newest first.
type Repository interface {
	Put(ctx context.Context, lead *Lead) error
	Get(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter Filter) ([]*Lead, error)
	Delete(ctx context.Context, id string) error
}

// SortNewestFirst orders leads by creation time descending, then by ID.
func SortNewestFirst(leads []*Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		if !leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
			return leads[i].CreatedAt.After(leads[j].CreatedAt)
		}
		return leads[i].ID < leads[j].ID
	})
}
