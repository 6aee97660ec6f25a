package sources

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
)

func testWin() energy.Window {
	return energy.Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC),
	}
}

func TestFuelTypeBuildRequest(t *testing.T) {
	src := NewFuelTypeSource("https://api.example.test/v2", "secret")

	req, err := src.BuildRequest(context.Background(), "NE", testWin())
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Contains(t, req.URL.Path, "/electricity/rto/fuel-type-data/data/")

	q := req.URL.Query()
	assert.Equal(t, "secret", q.Get("api_key"))
	assert.Equal(t, "hourly", q.Get("frequency"))
	assert.Equal(t, "NE", q.Get("facets[respondent][]"))
	assert.Equal(t, "2024-01-01T00", q.Get("start"))
	assert.Equal(t, "2024-01-18T00", q.Get("end"))
	assert.Equal(t, "0", q.Get("offset"))
	assert.Equal(t, "5000", q.Get("length"))
	assert.Equal(t, "period", q.Get("sort[0][column]"))
	assert.Equal(t, "desc", q.Get("sort[0][direction]"))

	for i, fuel := range energy.FuelTypes {
		assert.Equal(t, fuel, q.Get("facets[fueltype]["+string(rune('0'+i))+"]"))
	}
}

func TestFuelTypeMaxWindowRespectsPageCap(t *testing.T) {
	src := NewFuelTypeSource(DefaultEIABaseURL, "k")

	days := int(src.MaxWindow() / (24 * time.Hour))
	assert.Equal(t, 17, days)

	// A full window at hourly resolution with all facets stays under the cap.
	assert.Less(t, days*24*len(energy.FuelTypes), eiaPageCap)
}

const fuelTypeFixture = `{
  "response": {
    "total": 4,
    "data": [
      {"period": "2024-01-01T05", "respondent": "NE", "respondent-name": "New England",
       "fueltype": "SUN", "type-name": "Solar", "value": 12.5, "value-units": "megawatthours"},
      {"period": "2024-01-01T05", "respondent": "NE", "respondent-name": "New England",
       "fueltype": "WND", "type-name": "Wind", "value": "34", "value-units": "megawatthours"},
      {"period": "2024-01-01T05", "respondent": "CAL", "respondent-name": "California",
       "fueltype": "SUN", "type-name": "Solar", "value": 99, "value-units": "megawatthours"},
      {"period": "2024-01-01T06", "respondent": "NE", "respondent-name": "New England",
       "fueltype": "COL", "type-name": "Coal", "value": "not-a-number", "value-units": "megawatthours"}
    ]
  }
}`

func TestFuelTypeParse(t *testing.T) {
	src := NewFuelTypeSource(DefaultEIABaseURL, "k")

	recs, err := src.Parse(strings.NewReader(fuelTypeFixture), "NE")
	require.NoError(t, err)
	require.Len(t, recs, 3, "foreign respondents are dropped")

	assert.Equal(t, "NE", recs[0].Entity)
	assert.Equal(t, "New England", recs[0].EntityName)
	assert.Equal(t, energy.FuelSolar, recs[0].Category)
	assert.Equal(t, "Solar", recs[0].CategoryName)
	assert.Equal(t, 12.5, recs[0].Value)
	assert.Equal(t, "megawatthours", recs[0].Units)
	assert.True(t, recs[0].Period.Equal(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)))

	// Quoted numbers are accepted.
	assert.Equal(t, 34.0, recs[1].Value)

	// Malformed values survive parsing as NaN; the store skips them.
	assert.True(t, math.IsNaN(recs[2].Value))
}

func TestFuelTypeParseMissingEnvelope(t *testing.T) {
	src := NewFuelTypeSource(DefaultEIABaseURL, "k")

	for _, body := range []string{`{}`, `{"response": {}}`, `{"response": null}`} {
		_, err := src.Parse(strings.NewReader(body), "NE")
		assert.Error(t, err, "body %s must be rejected", body)
	}
}

func TestDemandBuildRequestAndParse(t *testing.T) {
	src := NewDemandSource("https://api.example.test/v2", "secret")

	req, err := src.BuildRequest(context.Background(), "NE", testWin())
	require.NoError(t, err)
	assert.Contains(t, req.URL.Path, "/electricity/rto/region-data/data/")

	q := req.URL.Query()
	assert.Equal(t, "D", q.Get("facets[type][0]"))
	assert.Equal(t, "NG", q.Get("facets[type][1]"))

	body := `{"response": {"data": [
	  {"period": "2024-01-01T05", "respondent": "NE", "respondent-name": "New England",
	   "type": "D", "type-name": "Demand", "value": 11000, "value-units": "megawatthours"},
	  {"period": "2024-01-01T05", "respondent": "NE", "respondent-name": "New England",
	   "type": "NG", "type-name": "Net generation", "value": 10500, "value-units": "megawatthours"}
	]}}`

	recs, err := src.Parse(strings.NewReader(body), "NE")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "D", recs[0].Category)
	assert.Equal(t, 11000.0, recs[0].Value)
	assert.Equal(t, "NG", recs[1].Category)
	assert.Equal(t, energy.DatasetDemand, src.Dataset())
}

func TestParsePeriodFormats(t *testing.T) {
	cases := map[string]time.Time{
		"2024-01-01T05":        time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC),
		"2024-01-01T05:30":     time.Date(2024, 1, 1, 5, 30, 0, 0, time.UTC),
		"2024-01-01":           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024-01-01T05:00:00Z": time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := parsePeriod(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(want), in)
	}

	_, err := parsePeriod("last tuesday")
	assert.Error(t, err)
}
