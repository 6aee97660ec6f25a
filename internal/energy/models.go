package energy

import (
	"time"
)

// Dataset names a family of raw records that share a category namespace.
// EIA's region-data type code "NG" (net generation) is not the same thing as
// the fuel-type code "NG" (natural gas), so records from different upstream
// datasets are never mixed under one key space.
const (
	DatasetGeneration = "generation"
	DatasetDemand     = "demand"
	DatasetWeather    = "weather"
)

// Fuel type codes as reported by the EIA fuel-type-data endpoint.
const (
	FuelSolar   = "SUN"
	FuelWind    = "WND"
	FuelHydro   = "WAT"
	FuelNuclear = "NUC"
	FuelGas     = "NG"
	FuelCoal    = "COL"
)

// FuelTypes lists the generation facets requested from EIA, in request order.
var FuelTypes = []string{FuelSolar, FuelWind, FuelHydro, FuelNuclear, FuelGas, FuelCoal}

// renewableFuels are the fuel types counted toward the renewable share.
var renewableFuels = map[string]bool{
	FuelSolar: true,
	FuelWind:  true,
	FuelHydro: true,
}

// RawRecord is one normalized upstream sample. Within a dataset the
// (Period, Entity, Category) triple is unique; re-ingesting the same triple
// replaces Value and Units in place.
type RawRecord struct {
	Period       time.Time `json:"period"` // always UTC
	Entity       string    `json:"entity"`
	EntityName   string    `json:"entityName,omitempty"`
	Category     string    `json:"category"`
	CategoryName string    `json:"categoryName,omitempty"`
	Value        float64   `json:"value"`
	Units        string    `json:"units,omitempty"`
}

// Key returns the canonical natural-key string for indexing this record.
func (r RawRecord) Key() string {
	return r.Period.UTC().Format(time.RFC3339) + "|" + r.Entity + "|" + r.Category
}

// DailyRollup aggregates one entity's raw values for a calendar date and
// category. Recomputed wholesale from the raw snapshot, never incrementally.
type DailyRollup struct {
	Date     time.Time `json:"date"` // midnight UTC
	Entity   string    `json:"entity"`
	Category string    `json:"category"`
	Total    float64   `json:"total"`
	Peak     float64   `json:"peak"`
	Average  float64   `json:"average"`
}

// RegionalStat is the per-date generation mix for one entity. Percentage
// fields are nil when the date's total generation is zero.
type RegionalStat struct {
	Entity          string    `json:"entity"`
	Date            time.Time `json:"date"` // midnight UTC
	TotalGeneration float64   `json:"totalGenerationMwh"`
	PeakHour        float64   `json:"peakHourMwh"`
	AverageHour     float64   `json:"averageHourlyMwh"`
	RenewablePct    *float64  `json:"renewablePercentage"`
	CoalPct         *float64  `json:"coalPercentage"`
	GasPct          *float64  `json:"gasPercentage"`
	NuclearPct      *float64  `json:"nuclearPercentage"`
	SolarPct        *float64  `json:"solarPercentage"`
	WindPct         *float64  `json:"windPercentage"`
	HydroPct        *float64  `json:"hydroPercentage"`
}

// Location is a named place tracked by the weather dataset.
type Location struct {
	Name      string  `yaml:"name" json:"name"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	City      string  `yaml:"city,omitempty" json:"city,omitempty"`
	Country   string  `yaml:"country,omitempty" json:"country,omitempty"`
}

// DateOf truncates a period to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
