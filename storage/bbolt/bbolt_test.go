package bbolt

import (
	"path/filepath"
	"testing"

	"github.com/jmcleod/leaddesk/storage/storagetest"
)

func TestBBoltStorage(t *testing.T) {
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "leads.db"), nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	defer s.Close()

	storagetest.Run(t, s)
}

func TestBBoltStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.db")
	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	storagetest.Run(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("could not reopen db: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(t.Context(), "lead-2"); err != nil {
		t.Errorf("lead should survive reopen: %v", err)
	}
}
