package game

import (
	"context"
	"math/big"
	"sync"
)

// MemoryStateRepo keeps the last saved snapshot in memory (dev/test use).
type MemoryStateRepo struct {
	mu    sync.RWMutex
	state *State
	saves int
	err   error
}

func NewMemoryStateRepo() *MemoryStateRepo {
	return &MemoryStateRepo{}
}

func (r *MemoryStateRepo) Load(ctx context.Context) (State, bool, error) {
	if err := ctx.Err(); err != nil {
		return State{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state == nil {
		return State{}, false, nil
	}
	return cloneState(*r.state), true, nil
}

func (r *MemoryStateRepo) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	cp := cloneState(st)
	r.state = &cp
	r.saves++
	return nil
}

// FailWith makes every later Save return err; nil restores normal behaviour.
func (r *MemoryStateRepo) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Saves reports how many saves succeeded.
func (r *MemoryStateRepo) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

func cloneState(st State) State {
	out := State{
		Entities:   make(map[string]EntityState, len(st.Entities)),
		LastUpdate: st.LastUpdate,
		Invalid:    append([]string(nil), st.Invalid...),
	}
	for name, es := range st.Entities {
		var ce EntityState
		if es.Kills != nil {
			ce.Kills = new(big.Int).Set(es.Kills)
		}
		if es.Accumulated != nil {
			ce.Accumulated = new(big.Rat).Set(es.Accumulated)
		}
		out.Entities[name] = ce
	}
	return out
}

var _ StateRepository = (*MemoryStateRepo)(nil)

