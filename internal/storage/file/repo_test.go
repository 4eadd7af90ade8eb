package file

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
)

func TestRepoRoundTrip(t *testing.T) {
	repo, err := NewRepo(t.TempDir())
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := repo.Load(ctx); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}

	at := time.UnixMilli(1767258000000)
	if err := repo.Save(ctx, game.State{
		Entities: map[string]game.EntityState{
			"grass": {Kills: big.NewInt(41), Accumulated: big.NewRat(5, 9)},
			"stick": {Kills: big.NewInt(2), Accumulated: new(big.Rat)},
		},
		LastUpdate: at,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, game.State{
		Entities:   map[string]game.EntityState{"grass": {Kills: big.NewInt(42), Accumulated: big.NewRat(1, 9)}},
		LastUpdate: at.Add(time.Minute),
	}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	st, ok, err := repo.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got := st.Entities["grass"].Kills.String(); got != "42" {
		t.Fatalf("grass kills = %s, want 42", got)
	}
	if st.Entities["grass"].Accumulated.Cmp(big.NewRat(1, 9)) != 0 {
		t.Fatalf("grass accumulated = %s, want 1/9", st.Entities["grass"].Accumulated)
	}
	if got := st.Entities["stick"].Kills.String(); got != "2" {
		t.Fatalf("stick kills = %s, want 2 (kept from first save)", got)
	}
	if st.LastUpdate.UnixMilli() != at.Add(time.Minute).UnixMilli() {
		t.Fatalf("last update = %v", st.LastUpdate)
	}
}

func TestRepoSkipsMalformedEntries(t *testing.T) {
	repo, err := NewRepo(t.TempDir())
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	raw := `{"enemies":{"grass":{"kills":"x","accumulated":"0"},"stick":{"kills":"3","accumulated":"1/4"}},"lastUpdate":1767258000000}`
	if err := os.WriteFile(repo.Path(), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	st, ok, err := repo.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(st.Invalid) != 1 || st.Invalid[0] != "grass" {
		t.Fatalf("invalid = %v, want [grass]", st.Invalid)
	}
	if _, found := st.Entities["grass"]; found {
		t.Fatalf("malformed grass entry was decoded")
	}
	if got := st.Entities["stick"].Kills.String(); got != "3" {
		t.Fatalf("stick kills = %s, want 3", got)
	}
}

func TestRepoMalformedEntryKeepsProgressAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRepo(dir)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	if err := os.WriteFile(repo.Path(), []byte(`{"enemies":{"boulder":{"kills":"x","accumulated":"0"}},"lastUpdate":1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock := game.NewManualClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	boot := func() *game.Aggregator {
		r, err := NewRepo(dir)
		if err != nil {
			t.Fatalf("new repo: %v", err)
		}
		agg, err := game.NewAggregator(game.DefaultEntities(), clock.Now())
		if err != nil {
			t.Fatalf("aggregator: %v", err)
		}
		loop, err := game.NewLoop(game.LoopOptions{Aggregator: agg, Repo: r, Clock: clock})
		if err != nil {
			t.Fatalf("loop: %v", err)
		}
		loop.Boot(context.Background())
		for i := 0; i < 5; i++ {
			if err := agg.ManualAdvance("grass"); err != nil {
				t.Fatalf("manual kill: %v", err)
			}
		}
		if err := loop.SaveNow(context.Background()); err != nil {
			t.Fatalf("save: %v", err)
		}
		return agg
	}

	boot()
	agg := boot()
	if got := agg.Snapshot().Entities["grass"].Kills.String(); got != "10" {
		t.Fatalf("grass kills after second session = %s, want 10", got)
	}
}

func TestRepoSaveSetsCorruptFileAside(t *testing.T) {
	repo, err := NewRepo(t.TempDir())
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	if err := os.WriteFile(repo.Path(), []byte(`{"enemies":`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx := context.Background()

	if _, _, err := repo.Load(ctx); err == nil {
		t.Fatalf("expected an error for truncated json")
	}
	if err := repo.Save(ctx, game.State{
		Entities:   map[string]game.EntityState{"grass": {Kills: big.NewInt(7), Accumulated: new(big.Rat)}},
		LastUpdate: time.UnixMilli(1767258000000),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	kept, err := os.ReadFile(repo.Path() + ".corrupt")
	if err != nil {
		t.Fatalf("corrupt copy: %v", err)
	}
	if string(kept) != `{"enemies":` {
		t.Fatalf("corrupt copy = %q", kept)
	}
	st, ok, err := repo.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load after save: ok=%v err=%v", ok, err)
	}
	if got := st.Entities["grass"].Kills.String(); got != "7" {
		t.Fatalf("grass kills = %s, want 7", got)
	}
}
