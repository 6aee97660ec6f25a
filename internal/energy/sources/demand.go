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

// demandTypes are the region-data series requested: D (demand) and NG (net
// generation). NG here is a series code, not the natural-gas fuel type; the
// demand dataset keeps its own category namespace for exactly that reason.
var demandTypes = []string{"D", "NG"}

// DemandSource adapts the EIA electricity/rto/region-data endpoint: hourly
// demand and net generation per balancing authority.
type DemandSource struct {
	name    string
	baseURL string
	apiKey  string
	maxWin  time.Duration
}

func NewDemandSource(baseURL, apiKey string) *DemandSource {
	return &DemandSource{
		name:    "eia-region-demand",
		baseURL: baseURL,
		apiKey:  apiKey,
		maxWin:  energy.MaxWindowFor(eiaPageCap, hourlySamplesPerDay*len(demandTypes)),
	}
}

func (s *DemandSource) Name() string { return s.name }

func (s *DemandSource) Dataset() string { return energy.DatasetDemand }

func (s *DemandSource) MaxWindow() time.Duration { return s.maxWin }

func (s *DemandSource) BuildRequest(ctx context.Context, entity string, win energy.Window) (*http.Request, error) {
	values := url.Values{}
	values.Set("api_key", s.apiKey)
	values.Set("frequency", "hourly")
	values.Set("data[0]", "value")
	values.Set("facets[respondent][]", entity)
	for i, typ := range demandTypes {
		values.Set(fmt.Sprintf("facets[type][%d]", i), typ)
	}
	values.Set("start", win.Start.UTC().Format(eiaTimeFormat))
	values.Set("end", win.End.UTC().Format(eiaTimeFormat))
	values.Set("sort[0][column]", "period")
	values.Set("sort[0][direction]", "desc")
	values.Set("offset", "0")
	values.Set("length", fmt.Sprint(eiaPageCap))

	u := fmt.Sprintf("%s/electricity/rto/region-data/data/?%s", s.baseURL, values.Encode())
	return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
}

func (s *DemandSource) Parse(body io.Reader, entity string) ([]energy.RawRecord, error) {
	var payload struct {
		Response *struct {
			Data *[]struct {
				Period         string          `json:"period"`
				Respondent     string          `json:"respondent"`
				RespondentName string          `json:"respondent-name"`
				Type           string          `json:"type"`
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
			Category:     row.Type,
			CategoryName: row.TypeName,
			Value:        parseValue(row.Value),
			Units:        row.Units,
		})
	}
	return recs, nil
}
