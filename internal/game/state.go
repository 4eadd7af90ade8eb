package game

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"
)

// LegacyScale is the fixed-point factor used by the first save format,
// where accumulated progress was stored as an integer count of 1e-18 kills.
var LegacyScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var ErrMalformedState = errors.New("malformed game state")

// State is an exact snapshot of the simulation.
type State struct {
	Entities   map[string]EntityState
	LastUpdate time.Time

	// Invalid names stored entries that could not be decoded. They are
	// absent from Entities.
	Invalid []string
}

type EntityState struct {
	Kills       *big.Int
	Accumulated *big.Rat
}

// StateRepository persists snapshots. Load reports ok=false when nothing
// has been saved yet.
type StateRepository interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, st State) error
}

// Record is the persisted shape of a snapshot. Numbers travel as decimal
// strings so they survive JSON and SQLite TEXT columns without rounding.
type Record struct {
	Enemies    map[string]EntityRecord `json:"enemies"`
	LastUpdate int64                   `json:"lastUpdate"`
}

type EntityRecord struct {
	Kills       string `json:"kills"`
	Accumulated string `json:"accumulated"`
}

func (st State) Record() Record {
	rec := Record{
		Enemies: make(map[string]EntityRecord, len(st.Entities)),
	}
	if !st.LastUpdate.IsZero() {
		rec.LastUpdate = st.LastUpdate.UnixMilli()
	}
	for name, es := range st.Entities {
		rec.Enemies[name] = EntityRecord{
			Kills:       FormatKills(es.Kills),
			Accumulated: FormatProgress(es.Accumulated),
		}
	}
	return rec
}

// State decodes a record strictly: any unparsable value makes the whole
// record malformed. Used for state handed in by a caller.
func (rec Record) State() (State, error) {
	st := State{
		Entities:   make(map[string]EntityState, len(rec.Enemies)),
		LastUpdate: TimeFromMillis(rec.LastUpdate),
	}
	for name, er := range rec.Enemies {
		es, err := er.decode()
		if err != nil {
			return State{}, fmt.Errorf("%w: %s: %v", ErrMalformedState, name, err)
		}
		st.Entities[name] = es
	}
	return st, nil
}

// PartialState decodes every entry it can. Entries that fail are listed in
// Invalid instead of spoiling the rest of the record.
func (rec Record) PartialState() State {
	st := State{
		Entities:   make(map[string]EntityState, len(rec.Enemies)),
		LastUpdate: TimeFromMillis(rec.LastUpdate),
	}
	for name, er := range rec.Enemies {
		es, err := er.decode()
		if err != nil {
			st.Invalid = append(st.Invalid, name)
			continue
		}
		st.Entities[name] = es
	}
	sort.Strings(st.Invalid)
	return st
}

func (er EntityRecord) decode() (EntityState, error) {
	kills, err := ParseKills(er.Kills)
	if err != nil {
		return EntityState{}, fmt.Errorf("kills: %w", err)
	}
	acc, err := ParseProgress(er.Accumulated)
	if err != nil {
		return EntityState{}, fmt.Errorf("accumulated: %w", err)
	}
	return EntityState{Kills: kills, Accumulated: acc}, nil
}

func FormatKills(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func ParseKills(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid kill count %q", s)
	}
	return n, nil
}

// FormatProgress writes progress as "num/den", or "0".
func FormatProgress(r *big.Rat) string {
	if r == nil || r.Sign() == 0 {
		return "0"
	}
	return r.String()
}

// ParseProgress reads "num/den" or a decimal like "0.25". A bare integer
// is the legacy 1e18 fixed-point format.
func ParseProgress(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Rat), nil
	}
	var r *big.Rat
	if strings.ContainsAny(s, "/.eE") {
		v, ok := new(big.Rat).SetString(s)
		if !ok {
			return nil, fmt.Errorf("invalid progress %q", s)
		}
		r = v
	} else {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid progress %q", s)
		}
		r = new(big.Rat).SetFrac(n, LegacyScale)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative progress %q", s)
	}
	return r, nil
}

// TimeFromMillis maps the stored epoch milliseconds back to a time; zero
// or negative values mean "never".
func TimeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
