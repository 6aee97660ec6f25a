package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
)

var validate = validator.New()

// RegisterRoutes wires the read-only query surface over the three tables
// into the Fiber app. This is the contract downstream readers build on.
func RegisterRoutes(app *fiber.App, store energy.Store) {
	v1 := app.Group("/api/v1")

	v1.Get("/raw", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		recs, err := store.RawRange(c.Context(), req.Dataset, req.Entity, req.From, req.To)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to query raw records")
		}
		return c.JSON(fiber.Map{
			"dataset": req.Dataset,
			"entity":  req.Entity,
			"records": recs,
		})
	})

	v1.Get("/rollups/daily", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rollups, err := store.DailyRollups(c.Context(), req.Dataset, req.Entity, req.From, req.To)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to query daily rollups")
		}
		return c.JSON(fiber.Map{
			"dataset": req.Dataset,
			"entity":  req.Entity,
			"rollups": rollups,
		})
	})

	v1.Get("/stats/regional", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bindEntityOnly(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		stats, err := store.RegionalStats(c.Context(), req.Entity, req.From, req.To)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to query regional stats")
		}
		return c.JSON(fiber.Map{
			"entity": req.Entity,
			"stats":  stats,
		})
	})
}

// rangeQuery holds the common query parameters of the read endpoints. From
// and To are optional; a zero bound is open.
type rangeQuery struct {
	Dataset string `validate:"required,oneof=generation demand weather"`
	Entity  string `validate:"required"`
	From    time.Time
	To      time.Time
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	q.Dataset = c.Query("dataset", energy.DatasetGeneration)
	q.Entity = c.Query("entity")
	if err := validate.Struct(q); err != nil {
		return err
	}
	return q.bindRange(c)
}

// bindEntityOnly skips dataset validation; regional stats only exist for the
// generation dataset.
func (q *rangeQuery) bindEntityOnly(c *fiber.Ctx) error {
	q.Dataset = energy.DatasetGeneration
	q.Entity = c.Query("entity")
	if q.Entity == "" {
		return errors.New("entity query parameter is required")
	}
	return q.bindRange(c)
}

func (q *rangeQuery) bindRange(c *fiber.Ctx) error {
	if fromStr := c.Query("from"); fromStr != "" {
		from, err := parseTime(fromStr)
		if err != nil {
			return err
		}
		q.From = from
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := parseTime(toStr)
		if err != nil {
			return err
		}
		q.To = to
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return errors.New("to must not be before from")
	}
	return nil
}

// parseTime tries RFC3339, a plain date, or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, YYYY-MM-DD or unix seconds")
}
