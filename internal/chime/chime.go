// Package chime plays a short synthesised tone when the rat scores a kill.
package chime

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const (
	sampleRate   = beep.SampleRate(48000)
	toneLength   = 120 * time.Millisecond
	baseFreq     = 660.0
	maxQueued    = 4
	attackWindow = 0.005
)

// Player plays kill chimes. A zero Player, or one whose Init failed, is
// silent, so callers never have to check whether audio is available.
type Player struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	initialized bool
}

func New() *Player {
	return &Player{mixer: &beep.Mixer{}}
}

// Init opens the audio device. An error leaves the player silent.
func (p *Player) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if p.mixer == nil {
		p.mixer = &beep.Mixer{}
	}
	if err := speaker.Init(sampleRate, sampleRate.N(50*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(p.mixer)
	p.initialized = true
	return nil
}

// Kill queues one chime; the pitch rises with how many kills landed at
// once, capped at an octave.
func (p *Player) Kill(gained int64) {
	if p == nil || gained <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized || p.mixer.Len() >= maxQueued {
		return
	}
	speaker.Lock()
	p.mixer.Add(beep.Take(sampleRate.N(toneLength), NewTone(sampleRate, pitchFor(gained), toneLength)))
	speaker.Unlock()
}

func (p *Player) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return
	}
	speaker.Lock()
	p.mixer.Clear()
	speaker.Unlock()
	speaker.Close()
	p.initialized = false
}

func pitchFor(gained int64) float64 {
	steps := math.Min(float64(gained-1), 12)
	return baseFreq * math.Pow(2, steps/12)
}

// Tone is a sine with a fast attack and linear decay.
type Tone struct {
	sr     beep.SampleRate
	freq   float64
	length float64
	pos    int
}

func NewTone(sr beep.SampleRate, freq float64, length time.Duration) *Tone {
	return &Tone{sr: sr, freq: freq, length: length.Seconds()}
}

func (g *Tone) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		t := float64(g.pos) / float64(g.sr)

		env := 1 - t/g.length
		if env < 0 {
			env = 0
		}
		if t < attackWindow {
			env *= t / attackWindow
		}
		s := 0.25 * env * math.Sin(2*math.Pi*g.freq*t)

		samples[i][0] = s
		samples[i][1] = s
		g.pos++
	}
	return len(samples), true
}

func (g *Tone) Err() error {
	return nil
}
