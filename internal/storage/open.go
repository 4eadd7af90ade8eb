// Package storage picks the state repository named by configuration.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/config"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/storage/file"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/storage/sqlite"
)

// Open returns the configured repository and a close func that is always
// safe to call.
func Open(cfg config.StorageConfig) (game.StateRepository, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.StoreSQLite, "":
		path := cfg.SQLiteFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.DataDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, noop, fmt.Errorf("create data dir: %w", err)
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case config.StoreFile:
		repo, err := file.NewRepo(cfg.DataDir)
		if err != nil {
			return nil, noop, fmt.Errorf("open file store: %w", err)
		}
		return repo, noop, nil
	case config.StoreMemory:
		return game.NewMemoryStateRepo(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
