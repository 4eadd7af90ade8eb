package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

type apiFixture struct {
	mux    *http.ServeMux
	rr     *RouteRegistry
	agg    *game.Aggregator
	loop   *game.Loop
	repo   *game.MemoryStateRepo
	events *telemetry.MemoryRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWith(t, nil)
}

// newAPIFixtureWith lets a test put its own repository in front of the
// in-memory one the loop saves to.
func newAPIFixtureWith(t *testing.T, wrap func(*game.MemoryStateRepo) game.StateRepository) *apiFixture {
	t.Helper()
	agg, err := game.NewAggregator(game.DefaultEntities(), testStart)
	require.NoError(t, err)
	repo := game.NewMemoryStateRepo()
	var loopRepo game.StateRepository = repo
	if wrap != nil {
		loopRepo = wrap(repo)
	}
	events := telemetry.NewMemoryRepository()
	logger := log.New(io.Discard, "", 0)
	loop, err := game.NewLoop(game.LoopOptions{
		Aggregator: agg,
		Repo:       loopRepo,
		Clock:      game.NewManualClock(testStart),
		Logger:     logger,
		Events:     events,
	})
	require.NoError(t, err)

	f := &apiFixture{
		mux:    http.NewServeMux(),
		rr:     &RouteRegistry{},
		agg:    agg,
		loop:   loop,
		repo:   repo,
		events: events,
	}
	NewAPI(loop, logger).Register(f.mux, f.rr)
	RegisterRouteList(f.mux, f.rr)
	RegisterHealth(f.mux, repo)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func entityView(t *testing.T, v game.View, key string) game.EntityView {
	t.Helper()
	for _, ev := range v.Entities {
		if ev.Key == key {
			return ev
		}
	}
	t.Fatalf("entity %q not in view", key)
	return game.EntityView{}
}

func TestKill(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/kill", `{"enemy":"Grass"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	v := decode[game.View](t, rr)
	assert.Equal(t, "1", entityView(t, v, "grass").Kills)
	assert.Equal(t, "0", entityView(t, v, "stick").Kills)
	assert.Equal(t, "1", v.TotalKills)

	events, err := f.events.GetEvents(time.Time{}, []telemetry.EventType{telemetry.EventManualKill})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestKill_UnknownEntity(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/kill", `{"enemy":"dragon"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "0", f.agg.View().TotalKills)
}

func TestKill_BadJSON(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/kill", `{"enemy":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestKill_WrongMethod(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/api/kill", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestProgress_DefaultsToOneSecond(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/progress", `{"enemy":"grass"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[gainResponse](t, rr)
	assert.Equal(t, "0", resp.Gained)
	assert.Equal(t, "1/60", f.agg.Snapshot().Entities["grass"].Accumulated.String())
}

func TestProgress_SixtySecondsIsOneKill(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/progress", `{"enemy":"stick","seconds":60}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[gainResponse](t, rr)
	assert.Equal(t, "1", resp.Gained)
	assert.Equal(t, "1", entityView(t, resp.View, "stick").Kills)
}

func TestProgress_RejectsBadSeconds(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/progress", `{"enemy":"grass","seconds":-5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/progress", `{"enemy":"grass","seconds":1e300}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/progress", `{"enemy":"nobody","seconds":1}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCatchUp(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/catch-up", `{"seconds":3600}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[gainResponse](t, rr)
	assert.Equal(t, "120", resp.Gained)
	assert.Equal(t, testStart, f.agg.LastUpdate())
}

func TestReset_SavesImmediately(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/kill", `{"enemy":"grass"}`)

	rr := f.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rr.Code)
	f.loop.Wait()

	assert.Equal(t, "0", decode[game.View](t, rr).TotalKills)
	assert.Equal(t, 1, f.repo.Saves())
	st, ok, err := f.repo.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0", st.Entities["grass"].Kills.String())
}

type gatedRepo struct {
	*game.MemoryStateRepo
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) Save(ctx context.Context, st game.State) error {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
	return r.MemoryStateRepo.Save(ctx, st)
}

func TestReset_PersistsWhileSaveInFlight(t *testing.T) {
	var gate *gatedRepo
	f := newAPIFixtureWith(t, func(m *game.MemoryStateRepo) game.StateRepository {
		gate = &gatedRepo{MemoryStateRepo: m, entered: make(chan struct{}, 8), release: make(chan struct{})}
		return gate
	})
	f.do(t, http.MethodPost, "/api/kill", `{"enemy":"grass"}`)

	require.True(t, f.loop.SaveAsync())
	<-gate.entered

	rr := f.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rr.Code)
	f.loop.SaveAsync()
	close(gate.release)
	f.loop.Wait()

	st, ok, err := f.repo.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0", st.Entities["grass"].Kills.String())
	assert.Equal(t, 2, f.repo.Saves())
}

func TestGameStateMatchesPersistedSchema(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/kill", `{"enemy":"grass"}`)
	f.do(t, http.MethodPost, "/api/progress", `{"enemy":"grass","seconds":15}`)

	rr := f.do(t, http.MethodGet, "/api/game-state", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rec := decode[game.Record](t, rr)
	assert.Equal(t, testStart.UnixMilli(), rec.LastUpdate)
	require.Contains(t, rec.Enemies, "grass")
	assert.Equal(t, "1", rec.Enemies["grass"].Kills)
	// 15s at 1.1/min plus 1% multiplier from the manual kill.
	assert.NotEqual(t, "0", rec.Enemies["grass"].Accumulated)
}

func TestSaveState(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"enemies":{"grass":{"kills":"100000000000000000000","accumulated":"1/4"},"rat":{"kills":"3","accumulated":"0"}},"lastUpdate":1767258000000}`

	rr := f.do(t, http.MethodPost, "/api/save-state", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[saveStateResponse](t, rr)
	assert.True(t, resp.OK)
	assert.Equal(t, []string{"rat"}, resp.Ignored)

	st := f.agg.Snapshot()
	assert.Equal(t, "100000000000000000000", st.Entities["grass"].Kills.String())
	assert.Equal(t, "1/4", st.Entities["grass"].Accumulated.String())
	assert.Equal(t, int64(1767258000000), st.LastUpdate.UnixMilli())
	assert.Equal(t, 1, f.repo.Saves())
}

func TestSaveState_Malformed(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/save-state", `{"enemies":{"grass":{"kills":"-1","accumulated":"0"}}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, f.repo.Saves())
}

func TestSaveState_StoreFailureKeepsState(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.FailWith(errors.New("disk full"))

	rr := f.do(t, http.MethodPost, "/api/save-state", `{"enemies":{"stick":{"kills":"9","accumulated":"0"}}}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "9", f.agg.Snapshot().Entities["stick"].Kills.String())
	assert.Equal(t, int64(1), f.loop.SaveFailures())
}

func TestStats(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/kill", `{"enemy":"grass"}`)
	f.do(t, http.MethodPost, "/api/kill", `{"enemy":"grass"}`)
	f.do(t, http.MethodPost, "/api/reset", "")
	f.loop.Wait()

	rr := f.do(t, http.MethodGet, "/api/stats?since=2000-01-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	stats := decode[telemetry.Stats](t, rr)
	assert.Equal(t, 2, stats.ManualKills["grass"])
	assert.Equal(t, 1, stats.Resets)

	rr = f.do(t, http.MethodGet, "/api/stats?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "").Code)
}

type brokenRepo struct{}

func (brokenRepo) Load(context.Context) (game.State, bool, error) {
	return game.State{}, false, errors.New("gone")
}
func (brokenRepo) Save(context.Context, game.State) error { return errors.New("gone") }

func TestReadiness_StoreDown(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealth(mux, brokenRepo{})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouteList(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/_/routes.json", "")
	require.Equal(t, http.StatusOK, rr.Code)

	routes := decode[[]RouteDoc](t, rr)
	require.Len(t, routes, 8)
	assert.Equal(t, RouteDoc{Method: "GET", Pattern: "/api/game-state", Summary: "Persisted state of every entity"}, routes[0])
}
