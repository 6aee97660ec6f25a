package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/renewcast/energy-data-aggregation/internal/api/http"
	"github.com/renewcast/energy-data-aggregation/internal/config"
	"github.com/renewcast/energy-data-aggregation/internal/energy"
	"github.com/renewcast/energy-data-aggregation/internal/energy/sources"
	"github.com/renewcast/energy-data-aggregation/internal/logging"
	"github.com/renewcast/energy-data-aggregation/internal/scheduler"
	"github.com/renewcast/energy-data-aggregation/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml sources config")
	startFlag := flag.String("start", "", "ingestion range start (YYYY-MM-DD); defaults to 395 days ago")
	endFlag := flag.String("end", "", "ingestion range end, exclusive (YYYY-MM-DD); defaults to 30 days ago")
	serve := flag.Bool("serve", false, "after ingesting, keep running the query API and daily refresh job")
	flag.Parse()

	zlog, err := logging.New()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	explicitConfig := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})

	cfg, err := config.Load(sourcesPath(*configPath, explicitConfig))
	if err != nil {
		zlog.Fatal("failed to load config", zap.Error(err))
	}

	start, end, err := resolveRange(*startFlag, *endFlag)
	if err != nil {
		zlog.Fatal("invalid date range", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	// Shared HTTP client for all outbound API calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	jobs := buildJobs(cfg, httpClient)
	if len(jobs) == 0 {
		zlog.Warn("no sources configured; nothing to ingest")
	}

	service := energy.NewService(st, jobs, zlog)

	if err := service.Run(ctx, start, end); err != nil {
		// Only context cancellation reaches here; per-window failures are
		// logged inside the run.
		zlog.Warn("ingestion run interrupted", zap.Error(err))
	}

	if !*serve {
		return
	}

	sched := scheduler.New(service, cfg.RefreshDays, cfg.RefreshAt, zlog)
	if err := sched.Start(ctx); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "energy-data-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "energy-data-aggregation",
		})
	})

	httpapi.RegisterRoutes(app, st)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Error("fiber server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}

// sourcesPath tolerates a missing file at the default -config location; a
// bare invocation then runs with no sources configured. An explicitly passed
// path that does not exist still fails in config.Load.
func sourcesPath(path string, explicit bool) string {
	if explicit {
		return path
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ""
	}
	return path
}

// openStore selects the Postgres backend when DATABASE_URL is set and the
// in-memory backend otherwise, with a release func valid for either.
func openStore(ctx context.Context, cfg *config.AppConfig, zlog *zap.Logger) (energy.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		zlog.Warn("DATABASE_URL not set; using in-memory store, data will not survive the process")
		return store.NewMemoryStore(), func() {}, nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, zlog)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

// buildJobs assembles one ingestion job per configured source.
func buildJobs(cfg *config.AppConfig, client *http.Client) []energy.Job {
	var jobs []energy.Job

	if entities := cfg.Sources.Generation.Entities; len(entities) > 0 {
		src := sources.NewFuelTypeSource(cfg.Sources.EIABaseURL, cfg.EIAAPIKey)
		jobs = append(jobs, energy.Job{Fetcher: energy.NewFetcher(client, src), Entities: entities})
	}
	if entities := cfg.Sources.Demand.Entities; len(entities) > 0 {
		src := sources.NewDemandSource(cfg.Sources.EIABaseURL, cfg.EIAAPIKey)
		jobs = append(jobs, energy.Job{Fetcher: energy.NewFetcher(client, src), Entities: entities})
	}
	if locs := cfg.Sources.Weather.Locations; len(locs) > 0 {
		src := sources.NewWeatherSource(cfg.Sources.OpenMeteoBaseURL, locs, cfg.GeocoderAPIKey)
		jobs = append(jobs, energy.Job{Fetcher: energy.NewFetcher(client, src), Entities: src.Entities()})
	}
	return jobs
}

// resolveRange parses the -start/-end flags, falling back to the default
// trailing range when both are absent.
func resolveRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, end := config.DefaultRange(time.Now().UTC())

	if startStr != "" {
		t, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t.UTC()
	}
	if endStr != "" {
		t, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t.UTC()
	}
	return start, end, nil
}
