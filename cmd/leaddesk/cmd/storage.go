package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/leaddesk/config"
	"github.com/jmcleod/leaddesk/storage"
	bboltstorage "github.com/jmcleod/leaddesk/storage/bbolt"
	"github.com/jmcleod/leaddesk/storage/memory"
	"github.com/jmcleod/leaddesk/storage/postgres"
)

// openRepository opens the configured lead store. The returned close
// function is never nil.
func openRepository(ctx context.Context, cfg config.StorageConfig) (storage.Repository, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewRepository(), func() error { return nil }, nil

	case config.DriverBBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		// A second process on the same file waits for the lock; give up quickly.
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.Path, &bbolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("opening lead storage: %w", err)
		}
		return repo, repo.Close, nil

	case config.DriverPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
