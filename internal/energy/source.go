package energy

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Source abstracts one upstream dataset (EIA fuel-type generation, EIA
// regional demand, Open-Meteo weather archive). A single generic pipeline is
// parameterized by a Source instead of duplicating fetch-store-aggregate
// control flow per upstream.
type Source interface {
	Name() string

	// Dataset keys the raw and rollup tables this source feeds.
	Dataset() string

	// MaxWindow is the widest date range one request may cover without
	// risking silent truncation at the upstream page cap.
	MaxWindow() time.Duration

	// BuildRequest constructs the single paginated request for one entity
	// and window.
	BuildRequest(ctx context.Context, entity string, win Window) (*http.Request, error)

	// Parse decodes a successful response body into normalized records, in
	// upstream delivery order. A body missing the expected envelope keys is
	// an error; the caller wraps it as a ParseError.
	Parse(body io.Reader, entity string) ([]RawRecord, error)
}

// Store is the contract the persistent store (and the in-memory test store)
// must satisfy.
type Store interface {
	// UpsertRaw writes a batch of records in one transaction, keyed by
	// (dataset, period, entity, category). Invalid records are skipped
	// without aborting the batch. Returns the number of records stored.
	UpsertRaw(ctx context.Context, dataset, entity string, recs []RawRecord) (int, error)

	// RawForEntity returns the full raw snapshot for one entity, ordered by
	// period then category.
	RawForEntity(ctx context.Context, dataset, entity string) ([]RawRecord, error)

	// ReplaceDerived upserts recomputed rollups for one entity in a single
	// transaction. Regional stats only apply to the generation dataset and
	// may be empty for others.
	ReplaceDerived(ctx context.Context, dataset, entity string, daily []DailyRollup, regional []RegionalStat) error

	RawRange(ctx context.Context, dataset, entity string, from, to time.Time) ([]RawRecord, error)
	DailyRollups(ctx context.Context, dataset, entity string, from, to time.Time) ([]DailyRollup, error)
	RegionalStats(ctx context.Context, entity string, from, to time.Time) ([]RegionalStat, error)
}
