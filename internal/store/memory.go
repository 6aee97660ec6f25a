package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
)

// validateRecord rejects records the store cannot key or that carry a
// malformed value. Shared by both store backends so a skipped record is
// skipped everywhere.
func validateRecord(r energy.RawRecord) error {
	if r.Period.IsZero() {
		return fmt.Errorf("missing period")
	}
	if r.Category == "" {
		return fmt.Errorf("missing category")
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("malformed value")
	}
	return nil
}

// MemoryStore is a concurrency-safe in-memory implementation of the Store
// contract, used by tests and by credential-free dry runs.
type MemoryStore struct {
	mu sync.RWMutex

	// raw: dataset/entity -> natural key -> record
	raw map[string]map[string]energy.RawRecord

	// derived rollups, replaced wholesale per entity
	daily    map[string][]energy.DailyRollup
	regional map[string][]energy.RegionalStat
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		raw:      make(map[string]map[string]energy.RawRecord),
		daily:    make(map[string][]energy.DailyRollup),
		regional: make(map[string][]energy.RegionalStat),
	}
}

func scopeKey(dataset, entity string) string {
	return dataset + "/" + entity
}

// UpsertRaw inserts or replaces records by natural key. Invalid records are
// skipped; the rest of the batch still lands.
func (s *MemoryStore) UpsertRaw(_ context.Context, dataset, entity string, recs []energy.RawRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := scopeKey(dataset, entity)
	bucket, ok := s.raw[scope]
	if !ok {
		bucket = make(map[string]energy.RawRecord)
		s.raw[scope] = bucket
	}

	stored := 0
	for _, r := range recs {
		if err := validateRecord(r); err != nil {
			continue
		}
		bucket[r.Key()] = r
		stored++
	}
	return stored, nil
}

// RawForEntity returns the entity's full snapshot ordered by period then
// category.
func (s *MemoryStore) RawForEntity(_ context.Context, dataset, entity string) ([]energy.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedRaw(dataset, entity, time.Time{}, time.Time{}), nil
}

// RawRange returns the entity's records with from <= period < to.
func (s *MemoryStore) RawRange(_ context.Context, dataset, entity string, from, to time.Time) ([]energy.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedRaw(dataset, entity, from, to), nil
}

func (s *MemoryStore) sortedRaw(dataset, entity string, from, to time.Time) []energy.RawRecord {
	bucket := s.raw[scopeKey(dataset, entity)]

	recs := make([]energy.RawRecord, 0, len(bucket))
	for _, r := range bucket {
		if !from.IsZero() && r.Period.Before(from) {
			continue
		}
		if !to.IsZero() && !r.Period.Before(to) {
			continue
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Period.Equal(recs[j].Period) {
			return recs[i].Period.Before(recs[j].Period)
		}
		return recs[i].Category < recs[j].Category
	})
	return recs
}

// ReplaceDerived swaps in the recomputed rollups for one entity.
func (s *MemoryStore) ReplaceDerived(_ context.Context, dataset, entity string, daily []energy.DailyRollup, regional []energy.RegionalStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.daily[scopeKey(dataset, entity)] = append([]energy.DailyRollup(nil), daily...)
	if dataset == energy.DatasetGeneration {
		s.regional[entity] = append([]energy.RegionalStat(nil), regional...)
	}
	return nil
}

// DailyRollups returns the entity's rollups with from <= date < to. Zero
// bounds are open.
func (s *MemoryStore) DailyRollups(_ context.Context, dataset, entity string, from, to time.Time) ([]energy.DailyRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []energy.DailyRollup
	for _, ru := range s.daily[scopeKey(dataset, entity)] {
		if !from.IsZero() && ru.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !ru.Date.Before(to) {
			continue
		}
		out = append(out, ru)
	}
	return out, nil
}

// RegionalStats returns the entity's generation-mix stats with
// from <= date < to.
func (s *MemoryStore) RegionalStats(_ context.Context, entity string, from, to time.Time) ([]energy.RegionalStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []energy.RegionalStat
	for _, st := range s.regional[entity] {
		if !from.IsZero() && st.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !st.Date.Before(to) {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}
