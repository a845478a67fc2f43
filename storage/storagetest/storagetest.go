// Package storagetest provides a conformance suite shared by every
// storage.Repository backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmcleod/leaddesk/storage"
)

// Run exercises repo against the storage.Repository contract. repo must be empty.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	contact := &storage.Lead{
		ID:        "lead-1",
		Kind:      storage.KindContact,
		Status:    storage.StatusNew,
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		Company:   "Analytical Engines",
		Message:   "We need a new site.",
		SourceIP:  "203.0.113.7",
		CreatedAt: base,
		UpdatedAt: base,
	}
	chat := &storage.Lead{
		ID:     "lead-2",
		Kind:   storage.KindChat,
		Status: storage.StatusNew,
		Email:  "grace@example.com",
		Transcript: []storage.Message{
			{Role: "user", Content: "Hi there", At: base.Add(time.Minute)},
			{Role: "assistant", Content: "Hello!", At: base.Add(time.Minute)},
		},
		CreatedAt: base.Add(time.Hour),
		UpdatedAt: base.Add(time.Hour),
	}

	t.Run("PutGet", func(t *testing.T) {
		if err := repo.Put(ctx, contact); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(ctx, contact.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Name != contact.Name || got.Email != contact.Email || got.Kind != contact.Kind || got.Status != contact.Status {
			t.Errorf("Get returned wrong lead: %+v", got)
		}
		if !got.CreatedAt.Equal(contact.CreatedAt) {
			t.Errorf("expected created_at %v, got %v", contact.CreatedAt, got.CreatedAt)
		}
	})

	t.Run("PutTranscript", func(t *testing.T) {
		if err := repo.Put(ctx, chat); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(ctx, chat.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got.Transcript) != 2 || got.Transcript[1].Content != "Hello!" {
			t.Errorf("transcript not preserved: %+v", got.Transcript)
		}
	})

	t.Run("ReturnedLeadIsCopy", func(t *testing.T) {
		got, err := repo.Get(ctx, chat.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		got.Transcript[0].Content = "mutated"
		again, _ := repo.Get(ctx, chat.ID)
		if again.Transcript[0].Content == "mutated" {
			t.Error("repository should not share state with callers")
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		leads, err := repo.List(ctx, storage.Filter{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(leads) != 2 {
			t.Fatalf("expected 2 leads, got %d", len(leads))
		}
		if leads[0].ID != chat.ID || leads[1].ID != contact.ID {
			t.Errorf("expected newest first, got %s, %s", leads[0].ID, leads[1].ID)
		}
	})

	t.Run("ListFilter", func(t *testing.T) {
		leads, err := repo.List(ctx, storage.Filter{Kind: storage.KindContact})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(leads) != 1 || leads[0].ID != contact.ID {
			t.Errorf("kind filter returned %+v", leads)
		}

		updated := contact.Clone()
		updated.Status = storage.StatusReviewed
		updated.UpdatedAt = base.Add(2 * time.Hour)
		if err := repo.Put(ctx, updated); err != nil {
			t.Fatalf("Put (update) failed: %v", err)
		}
		leads, err = repo.List(ctx, storage.Filter{Status: storage.StatusReviewed})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(leads) != 1 || leads[0].ID != contact.ID {
			t.Errorf("status filter returned %+v", leads)
		}
		leads, _ = repo.List(ctx, storage.Filter{Kind: storage.KindChat, Status: storage.StatusReviewed})
		if len(leads) != 0 {
			t.Errorf("expected no reviewed chat leads, got %d", len(leads))
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, contact.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, contact.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(ctx, contact.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})

	t.Run("PutRequiresID", func(t *testing.T) {
		if err := repo.Put(ctx, &storage.Lead{Kind: storage.KindContact}); err == nil {
			t.Error("expected error for lead without id")
		}
	})
}
