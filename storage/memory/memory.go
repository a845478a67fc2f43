// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmcleod/leaddesk/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]*storage.Lead
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]*storage.Lead)}
}

func (r *Repository) Put(_ context.Context, lead *storage.Lead) error {
	if lead == nil || lead.ID == "" {
		return fmt.Errorf("lead id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[lead.ID] = lead.Clone()
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (*storage.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lead, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	return lead.Clone(), nil
}

func (r *Repository) List(_ context.Context, filter storage.Filter) ([]*storage.Lead, error) {
	r.mu.RLock()
	leads := make([]*storage.Lead, 0, len(r.data))
	for _, lead := range r.data {
		if filter.Match(lead) {
			leads = append(leads, lead.Clone())
		}
	}
	r.mu.RUnlock()
	storage.SortNewestFirst(leads)
	return leads, nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	delete(r.data, id)
	return nil
}
