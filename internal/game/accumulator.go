package game

import (
	"errors"
	"math/big"
	"strings"
	"time"
)

var (
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrInvalidElapsed = errors.New("elapsed time must be a finite, non-negative number")
	ErrInvalidRate    = errors.New("rate must be a non-negative number")
)

var (
	ratOne     = big.NewRat(1, 1)
	ratSixty   = big.NewRat(60, 1)
	ratHundred = big.NewRat(100, 1)
)

// Entity is the static description of something the rat hunts.
// Rates are per minute, the way the game is tuned; the accumulator
// converts them to per-second values once at construction.
type Entity struct {
	Key            string
	Name           string
	BasePerMinute  *big.Rat
	BonusPerMinute *big.Rat
	SpeedBonusPct  *big.Rat
}

// ParseEntity builds an Entity from decimal or fractional strings such as "1", "0.1" or "1/3".
func ParseEntity(key, name, basePerMinute, bonusPerMinute, speedBonusPct string) (Entity, error) {
	base, err := parseRate(basePerMinute)
	if err != nil {
		return Entity{}, err
	}
	bonus, err := parseRate(bonusPerMinute)
	if err != nil {
		return Entity{}, err
	}
	pct, err := parseRate(speedBonusPct)
	if err != nil {
		return Entity{}, err
	}
	key = normalizeKey(key)
	if strings.TrimSpace(name) == "" {
		name = key
	}
	return Entity{
		Key:            key,
		Name:           strings.TrimSpace(name),
		BasePerMinute:  base,
		BonusPerMinute: bonus,
		SpeedBonusPct:  pct,
	}, nil
}

// DefaultEntities is the classic pairing: grass speeds the rat up 1% per kill, sticks 2%.
func DefaultEntities() []Entity {
	return []Entity{
		{Key: "grass", Name: "Grass", BasePerMinute: big.NewRat(1, 1), BonusPerMinute: big.NewRat(1, 10), SpeedBonusPct: big.NewRat(1, 1)},
		{Key: "stick", Name: "Stick", BasePerMinute: big.NewRat(1, 1), BonusPerMinute: big.NewRat(1, 10), SpeedBonusPct: big.NewRat(2, 1)},
	}
}

func parseRate(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Rat), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return nil, ErrInvalidRate
	}
	return r, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Accumulator turns a kill rate and elapsed time into whole kills.
// Progress toward the next kill is an exact rational kept in [0, 1).
type Accumulator struct {
	entity Entity
	base   *big.Rat // kills per second at zero kills
	bonus  *big.Rat // extra kills per second per kill
	kills  *big.Int
	acc    *big.Rat
}

func NewAccumulator(e Entity) *Accumulator {
	base := new(big.Rat)
	if e.BasePerMinute != nil {
		base.Quo(e.BasePerMinute, ratSixty)
	}
	bonus := new(big.Rat)
	if e.BonusPerMinute != nil {
		bonus.Quo(e.BonusPerMinute, ratSixty)
	}
	return &Accumulator{
		entity: e,
		base:   base,
		bonus:  bonus,
		kills:  new(big.Int),
		acc:    new(big.Rat),
	}
}

func (a *Accumulator) Entity() Entity { return a.entity }

// ProductionRate returns base + kills*bonus in kills per second.
func (a *Accumulator) ProductionRate() *big.Rat {
	r := new(big.Rat).SetInt(a.kills)
	r.Mul(r, a.bonus)
	return r.Add(r, a.base)
}

// Advance accrues rate*multiplier*elapsed and carries whole kills out of
// the progress remainder. It returns the number of kills gained.
func (a *Accumulator) Advance(elapsed time.Duration, multiplier *big.Rat) *big.Int {
	if elapsed <= 0 || multiplier == nil || multiplier.Sign() <= 0 {
		return new(big.Int)
	}
	accrue := a.ProductionRate()
	accrue.Mul(accrue, multiplier)
	accrue.Mul(accrue, durationRat(elapsed))
	a.acc.Add(a.acc, accrue)
	return a.carry()
}

// carry moves floor(acc) into kills. acc is never negative, so the
// truncated quotient is the floor.
func (a *Accumulator) carry() *big.Int {
	whole := new(big.Int).Quo(a.acc.Num(), a.acc.Denom())
	if whole.Sign() == 0 {
		return whole
	}
	a.kills.Add(a.kills, whole)
	a.acc.Sub(a.acc, new(big.Rat).SetInt(whole))
	return whole
}

// ManualAdvance is a free kill; progress is untouched.
func (a *Accumulator) ManualAdvance() {
	a.kills.Add(a.kills, big.NewInt(1))
}

func (a *Accumulator) Reset() {
	a.kills.SetInt64(0)
	a.acc.SetInt64(0)
}

func (a *Accumulator) TotalKills() *big.Int {
	return new(big.Int).Set(a.kills)
}

// Progress returns the exact fraction of the way to the next kill.
func (a *Accumulator) Progress() *big.Rat {
	return new(big.Rat).Set(a.acc)
}

func (a *Accumulator) ProgressFraction() float64 {
	f, _ := a.acc.Float64()
	return f
}

// set installs restored values. Negative input is treated as zero and any
// whole part of progress is carried into kills.
func (a *Accumulator) set(kills *big.Int, progress *big.Rat) {
	a.kills.SetInt64(0)
	if kills != nil && kills.Sign() > 0 {
		a.kills.Set(kills)
	}
	a.acc.SetInt64(0)
	if progress != nil && progress.Sign() > 0 {
		a.acc.Set(progress)
	}
	a.carry()
}

func durationRat(d time.Duration) *big.Rat {
	return big.NewRat(int64(d), int64(time.Second))
}
