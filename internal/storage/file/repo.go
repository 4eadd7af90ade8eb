package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
)

// Repo stores the latest snapshot as state.json under a data directory.
type Repo struct {
	mu   sync.Mutex
	path string
}

func NewRepo(dataDir string) (*Repo, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &Repo{path: filepath.Join(dataDir, "state.json")}, nil
}

func (r *Repo) Path() string { return r.path }

func (r *Repo) Load(ctx context.Context) (game.State, bool, error) {
	if err := ctx.Err(); err != nil {
		return game.State{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return game.State{}, false, nil
		}
		return game.State{}, false, err
	}

	var rec game.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return game.State{}, false, err
	}
	if len(rec.Enemies) == 0 {
		return game.State{}, false, nil
	}
	return rec.PartialState(), true, nil
}

// Save merges st into the stored record, so entities missing from st keep
// their previous values, then replaces the file atomically.
func (r *Repo) Save(ctx context.Context, st game.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.readForMerge()
	if err != nil {
		return err
	}
	next := st.Record()
	for name, er := range next.Enemies {
		rec.Enemies[name] = er
	}
	rec.LastUpdate = next.LastUpdate

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// readForMerge returns the stored record. An unreadable file is moved
// aside to state.json.corrupt so the next write starts clean without
// destroying it.
func (r *Repo) readForMerge() (game.Record, error) {
	rec := game.Record{Enemies: map[string]game.EntityRecord{}}
	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		if rerr := os.Rename(r.path, r.path+".corrupt"); rerr != nil {
			return rec, fmt.Errorf("set aside corrupt state file: %w", rerr)
		}
		return game.Record{Enemies: map[string]game.EntityRecord{}}, nil
	}
	if rec.Enemies == nil {
		rec.Enemies = map[string]game.EntityRecord{}
	}
	return rec, nil
}

var _ game.StateRepository = (*Repo)(nil)
