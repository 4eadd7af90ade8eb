package game

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"
)

// Aggregator owns every Accumulator and the shared simulation clock.
// All operations take the same lock, so a tick never interleaves with a
// manual kill, a reset or a restore.
type Aggregator struct {
	mu         sync.Mutex
	order      []string
	entities   map[string]*Accumulator
	lastUpdate time.Time
}

// TickResult describes one advancement of the whole simulation.
type TickResult struct {
	Elapsed    time.Duration
	Multiplier *big.Rat
	Gained     map[string]*big.Int
}

// Total returns the kills gained across all entities.
func (r TickResult) Total() *big.Int {
	sum := new(big.Int)
	for _, n := range r.Gained {
		sum.Add(sum, n)
	}
	return sum
}

func NewAggregator(entities []Entity, now time.Time) (*Aggregator, error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("at least one entity is required")
	}
	a := &Aggregator{
		entities:   make(map[string]*Accumulator, len(entities)),
		lastUpdate: now,
	}
	for _, e := range entities {
		e.Key = normalizeKey(e.Key)
		if e.Key == "" {
			return nil, fmt.Errorf("entity key is required")
		}
		if _, dup := a.entities[e.Key]; dup {
			return nil, fmt.Errorf("duplicate entity %q", e.Key)
		}
		a.entities[e.Key] = NewAccumulator(e)
		a.order = append(a.order, e.Key)
	}
	return a, nil
}

// Keys returns entity keys in configuration order.
func (a *Aggregator) Keys() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

func (a *Aggregator) LastUpdate() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastUpdate
}

// GlobalMultiplier is the product over entities of 1 + pct/100 * kills.
func (a *Aggregator) GlobalMultiplier() *big.Rat {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.multiplierLocked()
}

func (a *Aggregator) multiplierLocked() *big.Rat {
	m := new(big.Rat).Set(ratOne)
	for _, key := range a.order {
		acc := a.entities[key]
		pct := acc.entity.SpeedBonusPct
		if pct == nil || pct.Sign() == 0 || acc.kills.Sign() == 0 {
			continue
		}
		f := new(big.Rat).SetInt(acc.kills)
		f.Mul(f, pct)
		f.Quo(f, ratHundred)
		f.Add(f, ratOne)
		m.Mul(m, f)
	}
	return m
}

// Tick advances the simulation to now. A clock that went backwards
// yields a zero delta but still moves lastUpdate.
func (a *Aggregator) Tick(now time.Time) TickResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	elapsed := now.Sub(a.lastUpdate)
	a.lastUpdate = now
	return a.advanceLocked(elapsed)
}

// CatchUp applies an externally measured elapsed duration, e.g. the time
// the process was not running. lastUpdate is left alone.
func (a *Aggregator) CatchUp(elapsed time.Duration) TickResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.advanceLocked(elapsed)
}

// Resume performs an offline catch-up from the restored lastUpdate to now.
func (a *Aggregator) Resume(now time.Time) TickResult {
	return a.Tick(now)
}

func (a *Aggregator) advanceLocked(elapsed time.Duration) TickResult {
	if elapsed < 0 {
		elapsed = 0
	}
	// One multiplier for the whole tick; kills gained by earlier entities
	// must not speed up later ones until the next tick.
	m := a.multiplierLocked()
	res := TickResult{
		Elapsed:    elapsed,
		Multiplier: m,
		Gained:     make(map[string]*big.Int, len(a.order)),
	}
	for _, key := range a.order {
		res.Gained[key] = a.entities[key].Advance(elapsed, m)
	}
	return res
}

func (a *Aggregator) ManualAdvance(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.entities[normalizeKey(key)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, key)
	}
	acc.ManualAdvance()
	return nil
}

// Nudge advances a single entity by elapsed using the current global
// multiplier. It returns the kills gained.
func (a *Aggregator) Nudge(key string, elapsed time.Duration) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.entities[normalizeKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, key)
	}
	return acc.Advance(elapsed, a.multiplierLocked()), nil
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acc := range a.entities {
		acc.Reset()
	}
}

func (a *Aggregator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := State{
		Entities:   make(map[string]EntityState, len(a.order)),
		LastUpdate: a.lastUpdate,
	}
	for _, key := range a.order {
		acc := a.entities[key]
		st.Entities[key] = EntityState{
			Kills:       acc.TotalKills(),
			Accumulated: acc.Progress(),
		}
	}
	return st
}

// Restore installs state for every recognised entity and returns the
// names it did not recognise. Entities absent from st keep their values.
func (a *Aggregator) Restore(st State) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ignored []string
	for name, es := range st.Entities {
		acc, ok := a.entities[normalizeKey(name)]
		if !ok {
			ignored = append(ignored, name)
			continue
		}
		acc.set(es.Kills, es.Accumulated)
	}
	if !st.LastUpdate.IsZero() {
		a.lastUpdate = st.LastUpdate
	}
	sort.Strings(ignored)
	return ignored
}

// SecondsToDuration converts a caller supplied number of seconds into a
// Duration, refusing NaN, infinities, negatives and values that overflow.
func SecondsToDuration(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, ErrInvalidElapsed
	}
	ns := seconds * float64(time.Second)
	if ns >= math.MaxInt64 {
		return 0, ErrInvalidElapsed
	}
	return time.Duration(ns), nil
}
