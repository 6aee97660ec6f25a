package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
)

// DefaultOpenMeteoBaseURL is the production Open-Meteo archive root.
const DefaultOpenMeteoBaseURL = "https://archive-api.open-meteo.com/v1"

// weatherMeasures maps Open-Meteo hourly variables to the category codes the
// downstream tables use (the same names the original weather dataset carried).
var weatherMeasures = []struct {
	field    string
	category string
}{
	{"temperature_2m", "temperature"},
	{"relative_humidity_2m", "humidity"},
	{"precipitation", "precipitation"},
	{"wind_speed_10m", "windspeed"},
	{"cloud_cover", "cloudcover"},
}

// WeatherSource adapts the Open-Meteo hourly archive. Entities are location
// names configured with coordinates; a location configured with only
// city/country is geocoded on first use.
type WeatherSource struct {
	name      string
	baseURL   string
	order     []string
	locations map[string]energy.Location
	maxWin    time.Duration
}

// NewWeatherSource builds the weather adapter. geocoderKey may be empty when
// every location carries explicit coordinates.
func NewWeatherSource(baseURL string, locations []energy.Location, geocoderKey string) *WeatherSource {
	if geocoderKey != "" {
		geocoder.ApiKey = geocoderKey
	}

	byName := make(map[string]energy.Location, len(locations))
	order := make([]string, 0, len(locations))
	for _, loc := range locations {
		byName[loc.Name] = loc
		order = append(order, loc.Name)
	}

	return &WeatherSource{
		name:      "open-meteo-archive",
		baseURL:   baseURL,
		order:     order,
		locations: byName,
		maxWin:    energy.MaxWindowFor(eiaPageCap, hourlySamplesPerDay*len(weatherMeasures)),
	}
}

func (s *WeatherSource) Name() string { return s.name }

func (s *WeatherSource) Dataset() string { return energy.DatasetWeather }

func (s *WeatherSource) MaxWindow() time.Duration { return s.maxWin }

// Entities returns the configured location names in configuration order,
// the entity list for this source's ingestion job.
func (s *WeatherSource) Entities() []string {
	return append([]string(nil), s.order...)
}

func (s *WeatherSource) BuildRequest(ctx context.Context, entity string, win energy.Window) (*http.Request, error) {
	loc, err := s.resolve(entity)
	if err != nil {
		return nil, err
	}

	// The archive API takes inclusive calendar dates.
	endDate := win.End.UTC().Add(-time.Second)
	if endDate.Before(win.Start) {
		endDate = win.Start
	}

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
	values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
	values.Set("start_date", win.Start.UTC().Format("2006-01-02"))
	values.Set("end_date", endDate.Format("2006-01-02"))
	values.Set("hourly", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,cloud_cover")
	values.Set("timezone", "UTC")

	u := fmt.Sprintf("%s/archive?%s", s.baseURL, values.Encode())
	return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
}

// resolve returns the coordinates for a configured location, geocoding
// city/country once when no explicit coordinates were given. The pipeline is
// single-threaded, so caching back into the map needs no locking.
func (s *WeatherSource) resolve(entity string) (energy.Location, error) {
	loc, ok := s.locations[entity]
	if !ok {
		return energy.Location{}, fmt.Errorf("unknown location %q", entity)
	}
	if loc.Latitude != 0 || loc.Longitude != 0 {
		return loc, nil
	}
	if loc.City == "" {
		return energy.Location{}, fmt.Errorf("location %q has neither coordinates nor a city to geocode", entity)
	}

	coords, err := geocoder.Geocoding(geocoder.Address{City: loc.City, Country: loc.Country})
	if err != nil {
		return energy.Location{}, fmt.Errorf("geocoding %q: %w", entity, err)
	}
	loc.Latitude = coords.Latitude
	loc.Longitude = coords.Longitude
	s.locations[entity] = loc
	return loc, nil
}

func (s *WeatherSource) Parse(body io.Reader, entity string) ([]energy.RawRecord, error) {
	var payload struct {
		Hourly *struct {
			Time          []string   `json:"time"`
			Temperature   []*float64 `json:"temperature_2m"`
			Humidity      []*float64 `json:"relative_humidity_2m"`
			Precipitation []*float64 `json:"precipitation"`
			WindSpeed     []*float64 `json:"wind_speed_10m"`
			CloudCover    []*float64 `json:"cloud_cover"`
		} `json:"hourly"`
		HourlyUnits map[string]string `json:"hourly_units"`
	}

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Hourly == nil || payload.Hourly.Time == nil {
		return nil, errors.New("missing hourly series")
	}

	series := [][]*float64{
		payload.Hourly.Temperature,
		payload.Hourly.Humidity,
		payload.Hourly.Precipitation,
		payload.Hourly.WindSpeed,
		payload.Hourly.CloudCover,
	}

	var recs []energy.RawRecord
	for i, ts := range payload.Hourly.Time {
		period, err := time.Parse("2006-01-02T15:04", ts)
		if err != nil {
			continue
		}
		period = period.UTC()

		for m, measure := range weatherMeasures {
			if i >= len(series[m]) {
				continue
			}
			value := math.NaN()
			if v := series[m][i]; v != nil {
				value = *v
			}
			recs = append(recs, energy.RawRecord{
				Period:   period,
				Entity:   entity,
				Category: measure.category,
				Value:    value,
				Units:    payload.HourlyUnits[measure.field],
			})
		}
	}
	return recs, nil
}
