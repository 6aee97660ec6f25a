package energy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job pairs a source with the entities it is ingested for. Generation and
// demand jobs carry EIA respondent codes, the weather job carries location
// names.
type Job struct {
	Fetcher  *Fetcher
	Entities []string
}

// Service orchestrates ingestion: for every job, entity and window it
// fetches, stores and recomputes rollups, strictly sequentially. Any
// component failure for one window is logged and never stops the run; the
// upstream rate limits are respected simply by never fetching concurrently.
type Service struct {
	store Store
	jobs  []Job
	log   *zap.Logger
}

// NewService creates a pipeline over the given store and jobs.
func NewService(store Store, jobs []Job, log *zap.Logger) *Service {
	return &Service{
		store: store,
		jobs:  jobs,
		log:   log,
	}
}

// Store exposes the underlying store for the query surface.
func (s *Service) Store() Store { return s.store }

// Run ingests [start, end) for every configured job. It only returns an
// error when the context is cancelled; per-window and per-entity failures are
// logged and skipped.
func (s *Service) Run(ctx context.Context, start, end time.Time) error {
	runID := uuid.NewString()
	log := s.log.With(zap.String("run", runID))

	log.Info("ingestion run starting",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("jobs", len(s.jobs)))

	for _, job := range s.jobs {
		for _, entity := range job.Entities {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.ingestEntity(ctx, log, job.Fetcher, entity, start, end)
		}
	}

	log.Info("ingestion run complete")
	return nil
}

// ingestEntity walks the planned windows for one entity in increasing time
// order. A failed derived recomputation abandons the entity's remaining
// windows: the recompute reads the full snapshot, so retrying it window after
// window against the same failure is pointless.
func (s *Service) ingestEntity(ctx context.Context, log *zap.Logger, f *Fetcher, entity string, start, end time.Time) {
	src := f.Source()
	elog := log.With(
		zap.String("source", src.Name()),
		zap.String("dataset", src.Dataset()),
		zap.String("entity", entity))

	windows := PlanWindows(start, end, src.MaxWindow())
	elog.Info("processing entity", zap.Int("windows", len(windows)))

	for _, win := range windows {
		if ctx.Err() != nil {
			return
		}
		wlog := elog.With(zap.Time("windowStart", win.Start), zap.Time("windowEnd", win.End))

		recs, err := f.FetchWindow(ctx, entity, win)
		if err != nil {
			wlog.Warn("fetch failed, treating window as empty", zap.Error(err))
			continue
		}
		if len(recs) == 0 {
			wlog.Debug("no records in window")
			continue
		}

		stored, err := s.store.UpsertRaw(ctx, src.Dataset(), entity, recs)
		if err != nil {
			wlog.Error("batch store failed", zap.Error(&StorageError{Dataset: src.Dataset(), Entity: entity, Err: err}))
			continue
		}
		wlog.Info("stored records", zap.Int("fetched", len(recs)), zap.Int("stored", stored))

		if stored == 0 {
			continue
		}
		if err := s.recompute(ctx, src.Dataset(), entity); err != nil {
			elog.Error("rollup recomputation failed, moving to next entity", zap.Error(err))
			return
		}
	}
}

// recompute rebuilds the derived tables for one entity from the current raw
// snapshot. Both rollup families are pure functions of the snapshot, so
// running this twice without intervening writes produces identical rows.
func (s *Service) recompute(ctx context.Context, dataset, entity string) error {
	recs, err := s.store.RawForEntity(ctx, dataset, entity)
	if err != nil {
		return &AggregationError{Dataset: dataset, Entity: entity, Err: err}
	}

	daily := ComputeDailyRollups(recs)

	var regional []RegionalStat
	if dataset == DatasetGeneration {
		regional = ComputeRegionalStats(entity, recs)
	}

	if err := s.store.ReplaceDerived(ctx, dataset, entity, daily, regional); err != nil {
		return &AggregationError{Dataset: dataset, Entity: entity, Err: err}
	}
	return nil
}
