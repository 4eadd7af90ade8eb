// Package tui is the terminal front end: a tcell screen redrawn from the
// views the game loop publishes.
package tui

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"

	"github.com/gdamore/tcell/v2"
)

// Chime is notified of kills gained between two views.
type Chime interface {
	Kill(gained int64)
}

var (
	styleText     = tcell.StyleDefault
	styleTitle    = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleSelected = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorGreen)
	styleBar      = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleStalled  = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleHelp     = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

const barWidth = 30

type UI struct {
	screen tcell.Screen
	loop   *game.Loop
	agg    *game.Aggregator
	chime  Chime

	views chan game.View

	// owned by the Run goroutine
	view      game.View
	selected  int
	lastTotal *big.Int
	status    string
}

func New(screen tcell.Screen, loop *game.Loop, chime Chime) *UI {
	return &UI{
		screen: screen,
		loop:   loop,
		agg:    loop.Aggregator(),
		chime:  chime,
		views:  make(chan game.View, 1),
	}
}

// Publish implements game.Publisher. Only the newest view is kept.
func (u *UI) Publish(v game.View) {
	for {
		select {
		case u.views <- v:
			return
		default:
		}
		select {
		case <-u.views:
		default:
		}
	}
}

// Run draws and handles input until ctx ends or the player quits.
func (u *UI) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(events)
		for {
			ev := u.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	u.show(u.agg.View())
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-u.views:
			u.show(v)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if u.handleKey(ev) {
					return nil
				}
				u.show(u.agg.View())
			case *tcell.EventResize:
				u.screen.Sync()
				u.draw()
			}
		}
	}
}

// handleKey applies one key press and reports whether to quit.
func (u *UI) handleKey(ev *tcell.EventKey) bool {
	keys := u.agg.Keys()
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyTab, tcell.KeyDown:
		u.selected = (u.selected + 1) % len(keys)
	case tcell.KeyBacktab, tcell.KeyUp:
		u.selected = (u.selected + len(keys) - 1) % len(keys)
	case tcell.KeyEnter:
		key := keys[u.selected]
		if err := u.agg.ManualAdvance(key); err != nil {
			u.status = err.Error()
		} else {
			u.status = "killed a " + key
		}
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case ' ':
			key := keys[u.selected]
			gained, err := u.agg.Nudge(key, time.Second)
			if err != nil {
				u.status = err.Error()
			} else {
				u.status = fmt.Sprintf("%s +1s, %s kills", key, gained)
			}
		case 'r':
			u.agg.Reset()
			u.loop.SaveAsync()
			u.lastTotal = nil
			u.status = "reset"
		}
	}
	return false
}

func (u *UI) show(v game.View) {
	total, ok := new(big.Int).SetString(v.TotalKills, 10)
	if ok && u.lastTotal != nil && u.chime != nil {
		if d := new(big.Int).Sub(total, u.lastTotal); d.Sign() > 0 {
			n := int64(math.MaxInt64)
			if d.IsInt64() {
				n = d.Int64()
			}
			u.chime.Kill(n)
		}
	}
	if ok {
		u.lastTotal = total
	}
	u.view = v
	u.draw()
}

func (u *UI) draw() {
	s := u.screen
	s.Clear()
	v := u.view

	drawText(s, 1, 0, styleTitle, "The Rat and the Time")
	drawText(s, 1, 1, styleText, fmt.Sprintf("Kills: %s   Speed: %.2f%%", v.TotalKillsShort, v.MultiplierPct))

	for i, ev := range v.Entities {
		y := 3 + i*2
		style := styleText
		if i == u.selected {
			style = styleSelected
		}
		drawText(s, 1, y, style, fmt.Sprintf(" %-8s ", ev.Name))
		drawText(s, 12, y, styleText, fmt.Sprintf("%10s kills", ev.KillsShort))

		filled := int(ev.Progress * barWidth)
		for x := 0; x < barWidth; x++ {
			r := '·'
			if x < filled {
				r = '█'
			}
			s.SetContent(30+x, y, r, nil, styleBar)
		}
		if ev.Stalled {
			drawText(s, 31+barWidth, y, styleStalled, "stalled")
		} else {
			drawText(s, 31+barWidth, y, styleText, fmt.Sprintf("%.2f/min  next %.1fs", ev.RatePerMinute, ev.NextKillSeconds))
		}
	}

	y := 4 + len(v.Entities)*2
	drawText(s, 1, y, styleText, u.status)
	drawText(s, 1, y+1, styleHelp, "enter kill · space +1s · tab switch · r reset · esc quit")
	s.Show()
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

var _ game.Publisher = (*UI)(nil)
