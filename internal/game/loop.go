package game

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/telemetry"
)

const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultSaveEvery    = 10 * time.Second
	saveTimeout         = 5 * time.Second
)

// Publisher receives the view produced after each tick.
type Publisher interface {
	Publish(View)
}

type LoopOptions struct {
	Aggregator *Aggregator
	Repo       StateRepository
	Clock      Clock
	Interval   time.Duration
	SaveEvery  time.Duration
	Logger     *log.Logger
	Events     telemetry.Repository
	Publisher  Publisher
}

// Loop drives the aggregator from a ticker and persists snapshots in the
// background. Persistence never blocks or rolls back the simulation.
type Loop struct {
	agg       *Aggregator
	repo      StateRepository
	clock     Clock
	interval  time.Duration
	saveEvery time.Duration
	logger    *log.Logger
	events    telemetry.Repository
	pub       Publisher

	lastSave time.Time // loop goroutine only

	saveMu       sync.Mutex
	saving       atomic.Bool
	pending      atomic.Bool
	inflight     sync.WaitGroup
	saveFailures atomic.Int64
}

func NewLoop(opts LoopOptions) (*Loop, error) {
	if opts.Aggregator == nil {
		return nil, errors.New("aggregator is required")
	}
	if opts.Repo == nil {
		opts.Repo = NewMemoryStateRepo()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.SaveEvery < 0 {
		opts.SaveEvery = 0
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Events == nil {
		opts.Events = telemetry.Discard{}
	}
	return &Loop{
		agg:       opts.Aggregator,
		repo:      opts.Repo,
		clock:     opts.Clock,
		interval:  opts.Interval,
		saveEvery: opts.SaveEvery,
		logger:    opts.Logger,
		events:    opts.Events,
		pub:       opts.Publisher,
	}, nil
}

func (l *Loop) Aggregator() *Aggregator { return l.agg }

func (l *Loop) Events() telemetry.Repository { return l.events }

// Boot restores saved state and applies the progress made while the
// process was down. Malformed entries are skipped one by one; a load error
// or a record with nothing readable starts a fresh game.
func (l *Loop) Boot(ctx context.Context) TickResult {
	st, ok, err := l.repo.Load(ctx)
	switch {
	case err != nil:
		l.logger.Printf("[load] starting fresh: %v", err)
	case !ok:
		l.logger.Printf("[load] no saved state, starting fresh")
	case len(st.Entities) == 0 && len(st.Invalid) > 0:
		// Nothing readable; its lastUpdate cannot be trusted for catch-up.
		l.logger.Printf("[load] skipped malformed entries: %v, starting fresh", st.Invalid)
		ok = false
	default:
		if len(st.Invalid) > 0 {
			l.logger.Printf("[load] skipped malformed entries: %v", st.Invalid)
		}
		if ignored := l.agg.Restore(st); len(ignored) > 0 {
			l.logger.Printf("[load] ignored unknown entities: %v", ignored)
		}
		_ = l.events.RecordEvent(telemetry.EventRestore, telemetry.EventMetadata{"source": "boot"})
	}

	now := l.clock.Now()
	res := l.agg.Resume(now)
	l.lastSave = now
	if res.Elapsed > 0 && ok {
		l.logger.Printf("[load] offline for %s, caught up %s kills", res.Elapsed.Round(time.Second), res.Total())
		_ = l.events.RecordEvent(telemetry.EventCatchUp, telemetry.EventMetadata{
			"seconds": res.Elapsed.Seconds(),
			"kills":   res.Total().String(),
		})
	}
	l.recordGains(res)
	return res
}

// Step performs one tick: advance, schedule a save when due, publish.
func (l *Loop) Step() TickResult {
	now := l.clock.Now()
	res := l.agg.Tick(now)
	l.recordGains(res)

	if l.saveEvery > 0 && now.Sub(l.lastSave) >= l.saveEvery {
		l.lastSave = now
		l.SaveAsync()
	}
	if l.pub != nil {
		l.pub.Publish(l.agg.View())
	}
	return res
}

// Run ticks until ctx is done, then waits for the outstanding save and
// writes a final snapshot.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Printf("[loop] ticking every %s, saving every %s", l.interval, l.saveEvery)
	for {
		select {
		case <-ctx.Done():
			l.inflight.Wait()
			saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()
			if err := l.SaveNow(saveCtx); err != nil {
				return err
			}
			l.logger.Printf("[loop] stopped")
			return nil
		case <-ticker.C:
			l.Step()
		}
	}
}

// SaveAsync requests a background save. A request made while a save is
// running is queued, and the running goroutine writes one more, fresh
// snapshot after the current one, so no request is dropped. It reports
// whether a new goroutine was started.
func (l *Loop) SaveAsync() bool {
	l.pending.Store(true)
	if !l.saving.CompareAndSwap(false, true) {
		return false
	}
	l.inflight.Add(1)
	go l.drainSaves()
	return true
}

func (l *Loop) drainSaves() {
	defer l.inflight.Done()
	for {
		for l.pending.Swap(false) {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			_ = l.SaveNow(ctx)
			cancel()
		}
		l.saving.Store(false)
		// A request may have landed between the last Swap and the Store.
		if !l.pending.Load() || !l.saving.CompareAndSwap(false, true) {
			return
		}
	}
}

// SaveNow persists the current snapshot. Snapshots are taken under the
// save lock, so writes land in snapshot order.
func (l *Loop) SaveNow(ctx context.Context) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	if err := l.repo.Save(ctx, l.agg.Snapshot()); err != nil {
		l.saveFailures.Add(1)
		l.logger.Printf("[save] failed: %v", err)
		_ = l.events.RecordEvent(telemetry.EventSaveFailed, telemetry.EventMetadata{"error": err.Error()})
		return err
	}
	return nil
}

// Wait blocks until the background save, if any, has finished.
func (l *Loop) Wait() {
	l.inflight.Wait()
}

func (l *Loop) SaveFailures() int64 {
	return l.saveFailures.Load()
}

func (l *Loop) recordGains(res TickResult) {
	for _, key := range l.agg.order {
		n := res.Gained[key]
		if n == nil || n.Sign() == 0 {
			continue
		}
		_ = l.events.RecordEvent(telemetry.EventAutoKills, telemetry.EventMetadata{
			"entity": key,
			"kills":  n.String(),
		})
	}
}
