package energy_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
	"github.com/renewcast/energy-data-aggregation/internal/store"
)

// listSource mirrors the EIA adapters' shape against a fake upstream that
// serves a flat record list.
type listSource struct {
	baseURL string
	maxWin  time.Duration
}

func (s *listSource) Name() string             { return "list" }
func (s *listSource) Dataset() string          { return energy.DatasetGeneration }
func (s *listSource) MaxWindow() time.Duration { return s.maxWin }

func (s *listSource) BuildRequest(ctx context.Context, entity string, win energy.Window) (*http.Request, error) {
	u := s.baseURL + "?entity=" + entity + "&start=" + win.Start.Format("2006-01-02")
	return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
}

func (s *listSource) Parse(body io.Reader, entity string) ([]energy.RawRecord, error) {
	var payload struct {
		Records *[]energy.RawRecord `json:"records"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Records == nil {
		return nil, errors.New("missing records")
	}
	return *payload.Records, nil
}

// recordingStore counts derived-table writes on top of the memory store and
// can fail either write path for chosen entities.
type recordingStore struct {
	*store.MemoryStore
	derivedWrites map[string]int
	upsertErr     map[string]error
	derivedErr    map[string]error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryStore:   store.NewMemoryStore(),
		derivedWrites: make(map[string]int),
		upsertErr:     make(map[string]error),
		derivedErr:    make(map[string]error),
	}
}

func (r *recordingStore) UpsertRaw(ctx context.Context, dataset, entity string, recs []energy.RawRecord) (int, error) {
	if err := r.upsertErr[entity]; err != nil {
		return 0, err
	}
	return r.MemoryStore.UpsertRaw(ctx, dataset, entity, recs)
}

func (r *recordingStore) ReplaceDerived(ctx context.Context, dataset, entity string, daily []energy.DailyRollup, regional []energy.RegionalStat) error {
	if err := r.derivedErr[entity]; err != nil {
		return err
	}
	r.derivedWrites[entity]++
	return r.MemoryStore.ReplaceDerived(ctx, dataset, entity, daily, regional)
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func generationRecords(entity string, value float64) []energy.RawRecord {
	return []energy.RawRecord{
		{Period: day(1).Add(1 * time.Hour), Entity: entity, Category: energy.FuelSolar, Value: value},
		{Period: day(1).Add(1 * time.Hour), Entity: entity, Category: energy.FuelWind, Value: 2 * value},
	}
}

func TestRunStoresAndAggregates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entity := r.URL.Query().Get("entity")
		_ = json.NewEncoder(w).Encode(map[string]any{"records": generationRecords(entity, 10)})
	}))
	defer srv.Close()

	st := newRecordingStore()
	src := &listSource{baseURL: srv.URL, maxWin: 365 * 24 * time.Hour}
	svc := energy.NewService(st, []energy.Job{{
		Fetcher:  energy.NewFetcher(srv.Client(), src),
		Entities: []string{"NE"},
	}}, zap.NewNop())

	require.NoError(t, svc.Run(context.Background(), day(1), day(10)))

	recs, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "NE")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	rollups, err := st.DailyRollups(context.Background(), energy.DatasetGeneration, "NE", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, rollups, 2)

	stats, err := st.RegionalStats(context.Background(), "NE", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 30.0, stats[0].TotalGeneration)
	require.NotNil(t, stats[0].RenewablePct)
	assert.InDelta(t, 100, *stats[0].RenewablePct, 1e-9)

	assert.Equal(t, 1, st.derivedWrites["NE"])
}

func TestRunContinuesPastServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("entity") == "BROKEN" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": generationRecords(r.URL.Query().Get("entity"), 5)})
	}))
	defer srv.Close()

	st := newRecordingStore()
	src := &listSource{baseURL: srv.URL, maxWin: 365 * 24 * time.Hour}
	svc := energy.NewService(st, []energy.Job{{
		Fetcher:  energy.NewFetcher(srv.Client(), src),
		Entities: []string{"BROKEN", "NE"},
	}}, zap.NewNop())

	require.NoError(t, svc.Run(context.Background(), day(1), day(10)), "a failed fetch must not abort the run")

	broken, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "BROKEN")
	require.NoError(t, err)
	assert.Empty(t, broken, "a failed window stores nothing")
	assert.Zero(t, st.derivedWrites["BROKEN"], "no aggregation without stored records")

	ok, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "NE")
	require.NoError(t, err)
	assert.Len(t, ok, 2, "entities after the failing one are still processed")
	assert.Equal(t, 1, st.derivedWrites["NE"])
}

func TestRunKeepsRawWhenAggregationFails(t *testing.T) {
	fetches := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entity := r.URL.Query().Get("entity")
		fetches[entity]++
		_ = json.NewEncoder(w).Encode(map[string]any{"records": generationRecords(entity, 10)})
	}))
	defer srv.Close()

	st := newRecordingStore()
	st.derivedErr["BAD"] = errors.New("derived transaction failed")

	// Two windows per entity over the range.
	src := &listSource{baseURL: srv.URL, maxWin: 5 * 24 * time.Hour}
	svc := energy.NewService(st, []energy.Job{{
		Fetcher:  energy.NewFetcher(srv.Client(), src),
		Entities: []string{"BAD", "NE"},
	}}, zap.NewNop())

	require.NoError(t, svc.Run(context.Background(), day(1), day(10)), "a failed recompute must not abort the run")

	raw, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "BAD")
	require.NoError(t, err)
	assert.Len(t, raw, 2, "committed raw rows survive the rolled-back recompute")

	rollups, err := st.DailyRollups(context.Background(), energy.DatasetGeneration, "BAD", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rollups)
	assert.Equal(t, 1, fetches["BAD"], "remaining windows for the entity are abandoned")

	ok, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "NE")
	require.NoError(t, err)
	assert.Len(t, ok, 2, "later entities still ingest")
	assert.Equal(t, 2, fetches["NE"])
	assert.Equal(t, 2, st.derivedWrites["NE"], "later entities still aggregate")
}

func TestRunSkipsWindowWhenBatchStoreFails(t *testing.T) {
	fetches := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entity := r.URL.Query().Get("entity")
		fetches[entity]++
		_ = json.NewEncoder(w).Encode(map[string]any{"records": generationRecords(entity, 10)})
	}))
	defer srv.Close()

	st := newRecordingStore()
	st.upsertErr["FLAKY"] = errors.New("transaction deadlock")

	src := &listSource{baseURL: srv.URL, maxWin: 5 * 24 * time.Hour}
	svc := energy.NewService(st, []energy.Job{{
		Fetcher:  energy.NewFetcher(srv.Client(), src),
		Entities: []string{"FLAKY", "NE"},
	}}, zap.NewNop())

	require.NoError(t, svc.Run(context.Background(), day(1), day(10)), "a failed batch store must not abort the run")

	assert.Equal(t, 2, fetches["FLAKY"], "a failed window skips, the entity's remaining windows still run")
	assert.Zero(t, st.derivedWrites["FLAKY"], "no aggregation without stored records")

	raw, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "FLAKY")
	require.NoError(t, err)
	assert.Empty(t, raw)

	ok, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "NE")
	require.NoError(t, err)
	assert.Len(t, ok, 2)
	assert.Equal(t, 2, st.derivedWrites["NE"])
}

func TestRunContinuesPastBadEnvelope(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"unexpected": true}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": generationRecords("NE", 5)})
	}))
	defer srv.Close()

	st := newRecordingStore()
	// Two windows: the first response is malformed, the second is fine.
	src := &listSource{baseURL: srv.URL, maxWin: 5 * 24 * time.Hour}
	svc := energy.NewService(st, []energy.Job{{
		Fetcher:  energy.NewFetcher(srv.Client(), src),
		Entities: []string{"NE"},
	}}, zap.NewNop())

	require.NoError(t, svc.Run(context.Background(), day(1), day(10)))
	assert.Equal(t, 2, calls)

	recs, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "NE")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRunIsIdempotent(t *testing.T) {
	value := 10.0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"records": generationRecords("NE", value)})
	}))
	defer srv.Close()

	st := newRecordingStore()
	src := &listSource{baseURL: srv.URL, maxWin: 365 * 24 * time.Hour}
	svc := energy.NewService(st, []energy.Job{{
		Fetcher:  energy.NewFetcher(srv.Client(), src),
		Entities: []string{"NE"},
	}}, zap.NewNop())

	require.NoError(t, svc.Run(context.Background(), day(1), day(10)))

	// Second run delivers revised values for the same natural keys.
	value = 20
	require.NoError(t, svc.Run(context.Background(), day(1), day(10)))

	recs, err := st.RawForEntity(context.Background(), energy.DatasetGeneration, "NE")
	require.NoError(t, err)
	require.Len(t, recs, 2, "re-ingesting the same keys must not duplicate rows")
	assert.Equal(t, 20.0, recs[0].Value, "latest value wins")

	stats, err := st.RegionalStats(context.Background(), "NE", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 60.0, stats[0].TotalGeneration)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"records": []energy.RawRecord{}})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := newRecordingStore()
	src := &listSource{baseURL: srv.URL, maxWin: 24 * time.Hour}
	svc := energy.NewService(st, []energy.Job{{
		Fetcher:  energy.NewFetcher(srv.Client(), src),
		Entities: []string{"NE"},
	}}, zap.NewNop())

	err := svc.Run(ctx, day(1), day(10))
	assert.ErrorIs(t, err, context.Canceled)
}
