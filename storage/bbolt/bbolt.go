// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/leaddesk/storage"
)

var leadsBucket = []byte("leads")

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(leadsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating leads bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(_ context.Context, lead *storage.Lead) error {
	if lead == nil || lead.ID == "" {
		return fmt.Errorf("lead id is required")
	}
	data, err := json.Marshal(lead)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(leadsBucket).Put([]byte(lead.ID), data)
	})
}

func (s *Store) Get(_ context.Context, id string) (*storage.Lead, error) {
	var lead storage.Lead
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(leadsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &lead)
	})
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (s *Store) List(_ context.Context, filter storage.Filter) ([]*storage.Lead, error) {
	var leads []*storage.Lead
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(leadsBucket).ForEach(func(_, v []byte) error {
			var lead storage.Lead
			if err := json.Unmarshal(v, &lead); err != nil {
				return err
			}
			if filter.Match(&lead) {
				leads = append(leads, &lead)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	storage.SortNewestFirst(leads)
	return leads, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(leadsBucket)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}
