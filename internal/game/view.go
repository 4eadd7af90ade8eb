package game

import (
	"fmt"
	"math/big"
	"time"
)

// View is the read model the presentation layers draw once per tick.
// Floats here are for display only.
type View struct {
	TotalKills      string       `json:"total_kills"`
	TotalKillsShort string       `json:"total_kills_short"`
	Multiplier      string       `json:"multiplier"`
	MultiplierPct   float64      `json:"multiplier_pct"`
	LastUpdate      time.Time    `json:"last_update"`
	Entities        []EntityView `json:"entities"`
}

type EntityView struct {
	Key             string  `json:"key"`
	Name            string  `json:"name"`
	Kills           string  `json:"kills"`
	KillsShort      string  `json:"kills_short"`
	Progress        float64 `json:"progress"`
	RatePerMinute   float64 `json:"rate_per_minute"`
	NextKillSeconds float64 `json:"next_kill_seconds"`
	Stalled         bool    `json:"stalled"`
}

func (a *Aggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.multiplierLocked()
	mf, _ := m.Float64()
	total := new(big.Int)
	v := View{
		Multiplier:    m.FloatString(4),
		MultiplierPct: mf * 100,
		LastUpdate:    a.lastUpdate,
		Entities:      make([]EntityView, 0, len(a.order)),
	}
	for _, key := range a.order {
		acc := a.entities[key]
		total.Add(total, acc.kills)

		effective := acc.ProductionRate()
		effective.Mul(effective, m)
		perMinute, _ := new(big.Rat).Mul(effective, ratSixty).Float64()

		ev := EntityView{
			Key:           key,
			Name:          acc.entity.Name,
			Kills:         acc.kills.String(),
			KillsShort:    FormatCount(acc.kills),
			Progress:      acc.ProgressFraction(),
			RatePerMinute: perMinute,
		}
		if effective.Sign() == 0 {
			ev.Stalled = true
		} else {
			remaining := new(big.Rat).Sub(ratOne, acc.acc)
			remaining.Quo(remaining, effective)
			ev.NextKillSeconds, _ = remaining.Float64()
		}
		v.Entities = append(v.Entities, ev)
	}
	v.TotalKills = total.String()
	v.TotalKillsShort = FormatCount(total)
	return v
}

var countSuffixes = []struct {
	exp    int64
	suffix string
}{
	{12, "T"},
	{9, "B"},
	{6, "M"},
	{3, "K"},
}

// FormatCount abbreviates large counts: 1234 -> "1.23K", 5e12 -> "5.00T".
// Digits are truncated, never rounded up into the next unit.
func FormatCount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	for _, s := range countSuffixes {
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(s.exp), nil)
		if n.Cmp(unit) < 0 {
			continue
		}
		hundredths := new(big.Int).Mul(n, big.NewInt(100))
		hundredths.Quo(hundredths, unit)
		whole, frac := new(big.Int).QuoRem(hundredths, big.NewInt(100), new(big.Int))
		return fmt.Sprintf("%s.%02d%s", whole.String(), frac.Int64(), s.suffix)
	}
	return n.String()
}
