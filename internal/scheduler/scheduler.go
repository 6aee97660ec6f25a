package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
)

// Scheduler re-ingests a trailing window once a day, keeping recent revisions
// of already-stored periods fresh. Upserts make the re-ingestion idempotent.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	service     *energy.Service
	refreshDays int
	at          string
	log         *zap.Logger
}

// New creates a Scheduler running at the given local time of day ("HH:MM").
func New(service *energy.Service, refreshDays int, at string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler:   gocron.NewScheduler(time.UTC),
		service:     service,
		refreshDays: refreshDays,
		at:          at,
		log:         log,
	}
}

// Start schedules the daily refresh job and starts the underlying scheduler.
// The context is carried into every job run, so cancelling it interrupts an
// in-flight re-ingestion during shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Do(func() {
		s.refresh(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// refresh re-ingests the trailing refresh window once.
func (s *Scheduler) refresh(ctx context.Context) {
	start, end := refreshRange(time.Now().UTC(), s.refreshDays)

	s.log.Info("scheduled refresh starting",
		zap.Time("start", start),
		zap.Time("end", end))

	if err := s.service.Run(ctx, start, end); err != nil {
		s.log.Warn("scheduled refresh interrupted", zap.Error(err))
	}
}

// refreshRange returns the trailing range re-ingested by the daily job: the
// last `days` full days up to and including today.
func refreshRange(now time.Time, days int) (time.Time, time.Time) {
	end := energy.DateOf(now).AddDate(0, 0, 1)
	return end.AddDate(0, 0, -days), end
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
