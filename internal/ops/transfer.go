// Package ops moves saved game state between stores and files.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
)

var ErrNoState = errors.New("no saved state")

// Export writes the stored snapshot as the persisted JSON record.
func Export(ctx context.Context, repo game.StateRepository, w io.Writer) error {
	st, ok, err := repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return ErrNoState
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st.Record())
}

// Import reads a persisted JSON record and saves it into repo.
func Import(ctx context.Context, repo game.StateRepository, r io.Reader) (game.State, error) {
	var rec game.Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return game.State{}, fmt.Errorf("decode record: %w", err)
	}
	st, err := rec.State()
	if err != nil {
		return game.State{}, err
	}
	if err := repo.Save(ctx, st); err != nil {
		return game.State{}, fmt.Errorf("save state: %w", err)
	}
	return st, nil
}

// Copy moves the snapshot in from into to.
func Copy(ctx context.Context, from, to game.StateRepository) error {
	st, ok, err := from.Load(ctx)
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}
	if !ok {
		return ErrNoState
	}
	if err := to.Save(ctx, st); err != nil {
		return fmt.Errorf("save target: %w", err)
	}
	return nil
}

// Drill exports repo, imports the export into a scratch store and checks
// both sides encode to the same record. It returns the entity count.
func Drill(ctx context.Context, repo game.StateRepository) (int, error) {
	st, ok, err := repo.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return 0, ErrNoState
	}
	pr, pw := io.Pipe()
	go func() {
		enc := json.NewEncoder(pw)
		pw.CloseWithError(enc.Encode(st.Record()))
	}()

	scratch := game.NewMemoryStateRepo()
	got, err := Import(ctx, scratch, pr)
	if err != nil {
		return 0, err
	}
	want, _ := json.Marshal(st.Record())
	have, _ := json.Marshal(got.Record())
	if string(want) != string(have) {
		return 0, fmt.Errorf("round trip mismatch: %s != %s", have, want)
	}
	return len(got.Entities), nil
}
