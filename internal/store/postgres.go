package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS raw_records (
	dataset       TEXT NOT NULL,
	period        TIMESTAMPTZ NOT NULL,
	entity        TEXT NOT NULL,
	entity_name   TEXT,
	category      TEXT NOT NULL,
	category_name TEXT,
	value         DOUBLE PRECISION NOT NULL,
	units         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (dataset, period, entity, category)
);
CREATE INDEX IF NOT EXISTS idx_raw_records_entity ON raw_records (dataset, entity);
CREATE INDEX IF NOT EXISTS idx_raw_records_period ON raw_records (period);

CREATE TABLE IF NOT EXISTS daily_rollups (
	dataset    TEXT NOT NULL,
	date       DATE NOT NULL,
	entity     TEXT NOT NULL,
	category   TEXT NOT NULL,
	total      DOUBLE PRECISION NOT NULL,
	peak       DOUBLE PRECISION NOT NULL,
	average    DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (dataset, date, entity, category)
);
CREATE INDEX IF NOT EXISTS idx_daily_rollups_date ON daily_rollups (date);

CREATE TABLE IF NOT EXISTS regional_stats (
	entity               TEXT NOT NULL,
	date                 DATE NOT NULL,
	total_generation_mwh DOUBLE PRECISION NOT NULL,
	peak_hour_mwh        DOUBLE PRECISION NOT NULL,
	average_hourly_mwh   DOUBLE PRECISION NOT NULL,
	renewable_percentage DOUBLE PRECISION,
	coal_percentage      DOUBLE PRECISION,
	gas_percentage       DOUBLE PRECISION,
	nuclear_percentage   DOUBLE PRECISION,
	solar_percentage     DOUBLE PRECISION,
	wind_percentage      DOUBLE PRECISION,
	hydro_percentage     DOUBLE PRECISION,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity, date)
);
CREATE INDEX IF NOT EXISTS idx_regional_stats_date ON regional_stats (date);
`

// PostgresStore is the durable Store backend. A single pipeline writer plus
// any number of SELECT-only readers is the expected access pattern.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgresStore connects to dsn, verifies the connection and ensures the
// schema exists. Callers must Close on all exit paths.
func NewPostgresStore(ctx context.Context, dsn string, log *zap.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("postgres store ready", zap.String("database", cfg.ConnConfig.Database))
	return &PostgresStore{pool: pool, log: log}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// withTx runs fn inside a transaction, rolling back on error or panic and
// committing otherwise.
func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// UpsertRaw writes a batch of records in one transaction. Records failing
// validation are logged and skipped; a transaction-level failure aborts the
// batch as a whole.
func (s *PostgresStore) UpsertRaw(ctx context.Context, dataset, entity string, recs []energy.RawRecord) (int, error) {
	stored := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range recs {
			if verr := validateRecord(r); verr != nil {
				s.log.Warn("skipping record",
					zap.String("dataset", dataset),
					zap.String("entity", entity),
					zap.String("category", r.Category),
					zap.Time("period", r.Period),
					zap.Error(verr))
				continue
			}
			batch.Queue(`
				INSERT INTO raw_records (dataset, period, entity, entity_name, category, category_name, value, units)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (dataset, period, entity, category)
				DO UPDATE SET value = EXCLUDED.value, units = EXCLUDED.units,
				              entity_name = EXCLUDED.entity_name, category_name = EXCLUDED.category_name`,
				dataset, r.Period.UTC(), r.Entity, r.EntityName, r.Category, r.CategoryName, r.Value, r.Units)
		}
		if batch.Len() == 0 {
			return nil
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, execErr := br.Exec(); execErr != nil {
				_ = br.Close()
				return execErr
			}
			stored++
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

// RawForEntity returns the entity's full snapshot ordered by period then
// category.
func (s *PostgresStore) RawForEntity(ctx context.Context, dataset, entity string) ([]energy.RawRecord, error) {
	return s.queryRaw(ctx, `
		SELECT period, entity, COALESCE(entity_name, ''), category, COALESCE(category_name, ''), value, COALESCE(units, '')
		FROM raw_records
		WHERE dataset = $1 AND entity = $2
		ORDER BY period, category`,
		dataset, entity)
}

// RawRange returns the entity's records with from <= period < to.
func (s *PostgresStore) RawRange(ctx context.Context, dataset, entity string, from, to time.Time) ([]energy.RawRecord, error) {
	return s.queryRaw(ctx, `
		SELECT period, entity, COALESCE(entity_name, ''), category, COALESCE(category_name, ''), value, COALESCE(units, '')
		FROM raw_records
		WHERE dataset = $1 AND entity = $2 AND period >= $3 AND period < $4
		ORDER BY period, category`,
		dataset, entity, from.UTC(), to.UTC())
}

func (s *PostgresStore) queryRaw(ctx context.Context, sql string, args ...any) ([]energy.RawRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []energy.RawRecord
	for rows.Next() {
		var r energy.RawRecord
		if err := rows.Scan(&r.Period, &r.Entity, &r.EntityName, &r.Category, &r.CategoryName, &r.Value, &r.Units); err != nil {
			return nil, err
		}
		r.Period = r.Period.UTC()
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// ReplaceDerived upserts the recomputed rollups for one entity in a single
// transaction. Any failure rolls the whole recomputation back.
func (s *PostgresStore) ReplaceDerived(ctx context.Context, dataset, entity string, daily []energy.DailyRollup, regional []energy.RegionalStat) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ru := range daily {
			batch.Queue(`
				INSERT INTO daily_rollups (dataset, date, entity, category, total, peak, average)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (dataset, date, entity, category)
				DO UPDATE SET total = EXCLUDED.total, peak = EXCLUDED.peak, average = EXCLUDED.average`,
				dataset, ru.Date, ru.Entity, ru.Category, ru.Total, ru.Peak, ru.Average)
		}
		for _, st := range regional {
			batch.Queue(`
				INSERT INTO regional_stats (entity, date, total_generation_mwh, peak_hour_mwh, average_hourly_mwh,
					renewable_percentage, coal_percentage, gas_percentage, nuclear_percentage,
					solar_percentage, wind_percentage, hydro_percentage)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				ON CONFLICT (entity, date)
				DO UPDATE SET total_generation_mwh = EXCLUDED.total_generation_mwh,
				              peak_hour_mwh = EXCLUDED.peak_hour_mwh,
				              average_hourly_mwh = EXCLUDED.average_hourly_mwh,
				              renewable_percentage = EXCLUDED.renewable_percentage,
				              coal_percentage = EXCLUDED.coal_percentage,
				              gas_percentage = EXCLUDED.gas_percentage,
				              nuclear_percentage = EXCLUDED.nuclear_percentage,
				              solar_percentage = EXCLUDED.solar_percentage,
				              wind_percentage = EXCLUDED.wind_percentage,
				              hydro_percentage = EXCLUDED.hydro_percentage`,
				st.Entity, st.Date, st.TotalGeneration, st.PeakHour, st.AverageHour,
				st.RenewablePct, st.CoalPct, st.GasPct, st.NuclearPct,
				st.SolarPct, st.WindPct, st.HydroPct)
		}
		if batch.Len() == 0 {
			return nil
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
}

// DailyRollups returns rollups for an entity with from <= date < to.
func (s *PostgresStore) DailyRollups(ctx context.Context, dataset, entity string, from, to time.Time) ([]energy.DailyRollup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, entity, category, total, peak, average
		FROM daily_rollups
		WHERE dataset = $1 AND entity = $2 AND ($3::date IS NULL OR date >= $3) AND ($4::date IS NULL OR date < $4)
		ORDER BY date, category`,
		dataset, entity, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []energy.DailyRollup
	for rows.Next() {
		var ru energy.DailyRollup
		if err := rows.Scan(&ru.Date, &ru.Entity, &ru.Category, &ru.Total, &ru.Peak, &ru.Average); err != nil {
			return nil, err
		}
		ru.Date = energy.DateOf(ru.Date)
		out = append(out, ru)
	}
	return out, rows.Err()
}

// RegionalStats returns generation-mix stats for an entity with
// from <= date < to.
func (s *PostgresStore) RegionalStats(ctx context.Context, entity string, from, to time.Time) ([]energy.RegionalStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity, date, total_generation_mwh, peak_hour_mwh, average_hourly_mwh,
		       renewable_percentage, coal_percentage, gas_percentage, nuclear_percentage,
		       solar_percentage, wind_percentage, hydro_percentage
		FROM regional_stats
		WHERE entity = $1 AND ($2::date IS NULL OR date >= $2) AND ($3::date IS NULL OR date < $3)
		ORDER BY date`,
		entity, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []energy.RegionalStat
	for rows.Next() {
		var st energy.RegionalStat
		if err := rows.Scan(&st.Entity, &st.Date, &st.TotalGeneration, &st.PeakHour, &st.AverageHour,
			&st.RenewablePct, &st.CoalPct, &st.GasPct, &st.NuclearPct,
			&st.SolarPct, &st.WindPct, &st.HydroPct); err != nil {
			return nil, err
		}
		st.Date = energy.DateOf(st.Date)
		out = append(out, st)
	}
	return out, rows.Err()
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
