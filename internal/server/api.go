package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/telemetry"
)

const maxBodyBytes = 1 << 20

// API exposes the running simulation over HTTP. Every mutation goes
// through the aggregator, so handlers never race the tick loop.
type API struct {
	loop   *game.Loop
	agg    *game.Aggregator
	events telemetry.Repository
	logger *log.Logger
	now    func() time.Time
}

func NewAPI(loop *game.Loop, logger *log.Logger) *API {
	if logger == nil {
		logger = log.Default()
	}
	return &API{
		loop:   loop,
		agg:    loop.Aggregator(),
		events: loop.Events(),
		logger: logger,
		now:    time.Now,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// decodeJSON reads an optional JSON body; an empty body leaves out untouched.
func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (a *API) Register(mux *http.ServeMux, rr *RouteRegistry) {
	Handle(mux, rr, "GET /api/game-state", "Persisted state of every entity", "", a.GameState)
	Handle(mux, rr, "POST /api/save-state", "Restore and persist a saved state",
		`{"enemies":{"grass":{"kills":"12","accumulated":"1/4"}},"lastUpdate":1767258000000}`, a.SaveState)
	Handle(mux, rr, "GET /api/view", "Presentation view", "", a.View)
	Handle(mux, rr, "POST /api/kill", "Manual kill", `{"enemy":"grass"}`, a.Kill)
	Handle(mux, rr, "POST /api/progress", "Advance one entity", `{"enemy":"grass","seconds":1}`, a.Progress)
	Handle(mux, rr, "POST /api/reset", "Reset every entity", "", a.Reset)
	Handle(mux, rr, "POST /api/catch-up", "Apply elapsed time to every entity", `{"seconds":3600}`, a.CatchUp)
	Handle(mux, rr, "GET /api/stats", "Kill activity summary", "", a.Stats)
}

// GET /api/game-state
func (a *API) GameState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.agg.Snapshot().Record())
}

type saveStateResponse struct {
	OK      bool     `json:"ok"`
	Ignored []string `json:"ignored"`
}

// POST /api/save-state
func (a *API) SaveState(w http.ResponseWriter, r *http.Request) {
	var rec game.Record
	if err := decodeJSON(r, &rec); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	st, err := rec.State()
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ignored := a.agg.Restore(st)
	if ignored == nil {
		ignored = []string{}
	}
	_ = a.events.RecordEvent(telemetry.EventRestore, telemetry.EventMetadata{
		"source":  "api",
		"ignored": len(ignored),
	})

	if err := a.loop.SaveNow(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, "save failed")
		return
	}
	writeJSON(w, http.StatusOK, saveStateResponse{OK: true, Ignored: ignored})
}

// GET /api/view
func (a *API) View(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.agg.View())
}

type killRequest struct {
	Enemy string `json:"enemy"`
}

// POST /api/kill
func (a *API) Kill(w http.ResponseWriter, r *http.Request) {
	var body killRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := a.agg.ManualAdvance(body.Enemy); err != nil {
		a.writeGameErr(w, err)
		return
	}
	_ = a.events.RecordEvent(telemetry.EventManualKill, telemetry.EventMetadata{"entity": entityKey(body.Enemy)})
	writeJSON(w, http.StatusOK, a.agg.View())
}

type progressRequest struct {
	Enemy   string   `json:"enemy"`
	Seconds *float64 `json:"seconds"`
}

type gainResponse struct {
	Gained string    `json:"gained"`
	View   game.View `json:"view"`
}

// POST /api/progress
func (a *API) Progress(w http.ResponseWriter, r *http.Request) {
	var body progressRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	seconds := 1.0
	if body.Seconds != nil {
		seconds = *body.Seconds
	}
	d, err := game.SecondsToDuration(seconds)
	if err != nil {
		a.writeGameErr(w, err)
		return
	}
	gained, err := a.agg.Nudge(body.Enemy, d)
	if err != nil {
		a.writeGameErr(w, err)
		return
	}
	_ = a.events.RecordEvent(telemetry.EventNudge, telemetry.EventMetadata{
		"entity":  entityKey(body.Enemy),
		"seconds": seconds,
		"kills":   gained.String(),
	})
	writeJSON(w, http.StatusOK, gainResponse{Gained: gained.String(), View: a.agg.View()})
}

// POST /api/reset
func (a *API) Reset(w http.ResponseWriter, r *http.Request) {
	a.agg.Reset()
	_ = a.events.RecordEvent(telemetry.EventReset, nil)
	a.loop.SaveAsync()
	writeJSON(w, http.StatusOK, a.agg.View())
}

type catchUpRequest struct {
	Seconds float64 `json:"seconds"`
}

// POST /api/catch-up
func (a *API) CatchUp(w http.ResponseWriter, r *http.Request) {
	var body catchUpRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := game.SecondsToDuration(body.Seconds)
	if err != nil {
		a.writeGameErr(w, err)
		return
	}
	res := a.agg.CatchUp(d)
	total := res.Total()
	_ = a.events.RecordEvent(telemetry.EventCatchUp, telemetry.EventMetadata{
		"seconds": body.Seconds,
		"kills":   total.String(),
	})
	writeJSON(w, http.StatusOK, gainResponse{Gained: total.String(), View: a.agg.View()})
}

// GET /api/stats?since=<RFC3339>; defaults to the last 24 hours.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	since := a.now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}
	events, err := a.events.GetEvents(since, nil)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := telemetry.CalculateStats(events, since)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func entityKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (a *API) writeGameErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrUnknownEntity):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrInvalidElapsed):
		writeErr(w, http.StatusBadRequest, "seconds must be a finite, non-negative number")
	default:
		a.logger.Printf("[api] %v", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterHealth adds liveness and readiness probes. Readiness pings the
// store when it supports it and otherwise tries a load.
func RegisterHealth(mux *http.ServeMux, repo game.StateRepository) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "rat-and-time",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		var err error
		if p, ok := repo.(Pinger); ok {
			err = p.Ping(ctx)
		} else {
			_, _, err = repo.Load(ctx)
		}
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "state storage unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "rat-and-time",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
}
