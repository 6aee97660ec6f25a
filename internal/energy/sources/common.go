// Package sources contains the per-upstream adapters consumed by the generic
// ingestion pipeline: EIA fuel-type generation, EIA regional demand and the
// Open-Meteo weather archive.
package sources

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// eiaPageCap is the maximum row count the EIA v2 API returns per call.
// Requests past it are silently truncated, so window widths are derived from
// it rather than configured.
const eiaPageCap = 5000

// hourlySamplesPerDay is the record density of an hourly series.
const hourlySamplesPerDay = 24

// eiaTimeFormat is the hour-resolution timestamp format used by EIA v2 for
// both request parameters and response periods.
const eiaTimeFormat = "2006-01-02T15"

// parsePeriod decodes an upstream period string, tolerating the date-only
// form EIA uses for daily series. Returned times are UTC.
func parsePeriod(s string) (time.Time, error) {
	for _, layout := range []string{eiaTimeFormat, "2006-01-02T15:04", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	_, err := time.Parse(eiaTimeFormat, s)
	return time.Time{}, err
}

// parseValue decodes a numeric value that EIA delivers sometimes as a JSON
// number and sometimes as a quoted string. Malformed values map to NaN so the
// store can skip the single record instead of the batch.
func parseValue(raw json.RawMessage) float64 {
	b := bytes.Trim(bytes.TrimSpace(raw), `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
