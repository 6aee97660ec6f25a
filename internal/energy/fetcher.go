package energy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Fetcher issues the single paginated request for one source, entity and
// window. There is deliberately no retry or backoff: a failed window is
// reported as empty and the pipeline moves on, so a retry loop would only
// stretch the sequential run. A circuit breaker per source stops hammering an
// upstream that is failing hard.
type Fetcher struct {
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	source  Source
}

// NewFetcher wraps a source with transport handling.
func NewFetcher(client *http.Client, src Source) *Fetcher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        src.Name(),
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Fetcher{
		client:  client,
		circuit: cb,
		source:  src,
	}
}

// Source returns the wrapped source adapter.
func (f *Fetcher) Source() Source { return f.source }

// FetchWindow retrieves one window of records for an entity. On transport or
// envelope failure it returns no records together with a *TransportError or
// *ParseError; both are non-fatal and the caller logs and continues. Records
// are returned exactly as delivered by the upstream.
func (f *Fetcher) FetchWindow(ctx context.Context, entity string, win Window) ([]RawRecord, error) {
	req, err := f.source.BuildRequest(ctx, entity, win)
	if err != nil {
		return nil, &TransportError{Source: f.source.Name(), Entity: entity, Err: err}
	}
	req = req.WithContext(ctx)

	result, err := f.circuit.Execute(func() (interface{}, error) {
		resp, execErr := f.client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &TransportError{Source: f.source.Name(), Entity: entity, Status: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		var terr *TransportError
		if !errors.As(err, &terr) {
			err = &TransportError{Source: f.source.Name(), Entity: entity, Err: err}
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, &TransportError{Source: f.source.Name(), Entity: entity, Err: fmt.Errorf("unexpected result type from circuit breaker")}
	}
	defer resp.Body.Close()

	recs, err := f.source.Parse(resp.Body, entity)
	if err != nil {
		return nil, &ParseError{Source: f.source.Name(), Entity: entity, Err: err}
	}
	return recs, nil
}
