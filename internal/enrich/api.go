package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/resilience"
)

// apiSource queries an external enrichment API per candidate. Requests are
// rate limited, retried on transient failures, and guarded by the source's
// circuit breaker so a dead API cannot stall a whole job.
type apiSource struct {
	name    string
	baseURL string
	apiKey  string
	mapping map[string]string

	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

func newAPISource(_ context.Context, cfg model.SourceConfig, deps Deps) (Source, error) {
	if cfg.BaseURL == "" {
		return nil, errs.Validationf("external_api source %q: base_url required", cfg.Name)
	}
	if len(cfg.FieldMapping) == 0 {
		return nil, errs.Validationf("external_api source %q: field mapping required", cfg.Name)
	}

	limit := rate.Inf
	if deps.RatePerSecond > 0 {
		limit = rate.Limit(deps.RatePerSecond)
	}
	return &apiSource{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		mapping: cfg.FieldMapping,
		client:  deps.HTTPClient,
		limiter: rate.NewLimiter(limit, 1),
		breaker: deps.Breakers.Get(cfg.Name),
		retry:   deps.Retry,
	}, nil
}

func (s *apiSource) Name() string { return s.name }

func (s *apiSource) Lookup(ctx context.Context, c *model.Candidate) (map[string]any, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw map[string]any
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		raw, err = resilience.DoVal(ctx, s.retry, s.name, func(ctx context.Context) (map[string]any, error) {
			return s.query(ctx, digits(c.TaxID))
		})
		return err
	})
	if err != nil {
		return nil, &errs.UpstreamSourceError{Source: s.name, Err: err}
	}
	return mapFields(raw, s.mapping), nil
}

// query performs one GET against the API. A 404 means the candidate is
// simply unknown there; retryable statuses come back marked transient.
func (s *apiSource) query(ctx context.Context, taxID string) (map[string]any, error) {
	u, err := url.JoinPath(s.baseURL, taxID)
	if err != nil {
		return nil, eris.Wrapf(err, "build url for %s", s.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.Transient(err, 0)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resilience.RetryableStatus(resp.StatusCode):
		return nil, resilience.Transient(fmt.Errorf("%s returned status %d", s.name, resp.StatusCode), resp.StatusCode)
	default:
		return nil, eris.Errorf("%s returned status %d", s.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resilience.Transient(err, 0)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrapf(err, "decode %s response", s.name)
	}
	return raw, nil
}
