package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
)

// DefaultEIABaseURL is the production EIA v2 API root.
const DefaultEIABaseURL = "https://api.eia.gov/v2"

// FuelTypeSource adapts the EIA electricity/rto/fuel-type-data endpoint:
// hourly net generation per fuel type and balancing authority.
type FuelTypeSource struct {
	name    string
	baseURL string
	apiKey  string
	maxWin  time.Duration
}

// NewFuelTypeSource builds the generation adapter. baseURL is overridable for
// tests; pass DefaultEIABaseURL otherwise.
func NewFuelTypeSource(baseURL, apiKey string) *FuelTypeSource {
	return &FuelTypeSource{
		name:    "eia-fuel-type",
		baseURL: baseURL,
		apiKey:  apiKey,
		maxWin:  energy.MaxWindowFor(eiaPageCap, hourlySamplesPerDay*len(energy.FuelTypes)),
	}
}

func (s *FuelTypeSource) Name() string { return s.name }

func (s *FuelTypeSource) Dataset() string { return energy.DatasetGeneration }

func (s *FuelTypeSource) MaxWindow() time.Duration { return s.maxWin }

func (s *FuelTypeSource) BuildRequest(ctx context.Context, entity string, win energy.Window) (*http.Request, error) {
	values := url.Values{}
	values.Set("api_key", s.apiKey)
	values.Set("frequency", "hourly")
	values.Set("data[0]", "value")
	values.Set("facets[respondent][]", entity)
	for i, fuel := range energy.FuelTypes {
		values.Set(fmt.Sprintf("facets[fueltype][%d]", i), fuel)
	}
	values.Set("start", win.Start.UTC().Format(eiaTimeFormat))
	values.Set("end", win.End.UTC().Format(eiaTimeFormat))
	values.Set("sort[0][column]", "period")
	values.Set("sort[0][direction]", "desc")
	values.Set("offset", "0")
	values.Set("length", fmt.Sprint(eiaPageCap))

	u := fmt.Sprintf("%s/electricity/rto/fuel-type-data/data/?%s", s.baseURL, values.Encode())
	return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
}

func (s *FuelTypeSource) Parse(body io.Reader, entity string) ([]energy.RawRecord, error) {
	var payload struct {
		Response *struct {
			Data *[]struct {
				Period         string          `json:"period"`
				Respondent     string          `json:"respondent"`
				RespondentName string          `json:"respondent-name"`
				FuelType       string          `json:"fueltype"`
				TypeName       string          `json:"type-name"`
				Value          json.RawMessage `json:"value"`
				Units          string          `json:"value-units"`
			} `json:"data"`
		} `json:"response"`
	}

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Response == nil || payload.Response.Data == nil {
		return nil, errors.New("missing response.data")
	}

	recs := make([]energy.RawRecord, 0, len(*payload.Response.Data))
	for _, row := range *payload.Response.Data {
		// The respondent facet already filters server-side; mismatches
		// indicate upstream quirks and are dropped, as the original data
		// collection did.
		if row.Respondent != entity {
			continue
		}
		period, err := parsePeriod(row.Period)
		if err != nil {
			continue
		}
		recs = append(recs, energy.RawRecord{
			Period:       period,
			Entity:       row.Respondent,
			EntityName:   row.RespondentName,
			Category:     row.FuelType,
			CategoryName: row.TypeName,
			Value:        parseValue(row.Value),
			Units:        row.Units,
		})
	}
	return recs, nil
}
