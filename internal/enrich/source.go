// Package enrich runs asynchronous enrichment jobs: it pulls candidate
// attributes from configured data sources and merges them into the store.
package enrich

import (
	"context"
	"net/http"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/resilience"
)

// Source delivers attribute values for one candidate. Implementations
// return the values keyed by candidate attribute names, after applying the
// source's field mapping. A nil map with nil error means the source simply
// had nothing on the candidate.
type Source interface {
	Name() string
	Lookup(ctx context.Context, c *model.Candidate) (map[string]any, error)
}

// Deps carries the shared machinery every source builds on.
type Deps struct {
	HTTPClient *http.Client
	Retry      resilience.RetryConfig
	Breakers   *resilience.SourceBreakers
	// RatePerSecond throttles external API sources. Zero means unlimited.
	RatePerSecond float64
}

// Factory builds a Source from its stored configuration. Factories do the
// expensive setup up front: datasets are fetched and indexed, database
// pools are opened and pinged. A source that cannot be reached fails
// construction, not the first lookup.
type Factory func(ctx context.Context, cfg model.SourceConfig, deps Deps) (Source, error)

// Registry maps source types to their factories.
type Registry struct {
	factories map[model.SourceType]Factory
	deps      Deps
}

// NewRegistry builds a registry with the standard factories.
func NewRegistry(deps Deps) *Registry {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Breakers == nil {
		deps.Breakers = resilience.NewSourceBreakers(resilience.DefaultBreakerConfig())
	}
	r := &Registry{factories: map[model.SourceType]Factory{}, deps: deps}
	r.Register(model.SourceUpload, newDatasetSource)
	r.Register(model.SourceDatabase, newDatabaseSource)
	r.Register(model.SourceExternalAPI, newAPISource)
	return r
}

// Register installs or replaces the factory for a type.
func (r *Registry) Register(t model.SourceType, f Factory) {
	r.factories[t] = f
}

// Resolve instantiates every configured source in order. Any bad
// configuration or unreachable backend fails the whole resolution; a job
// must not run with a subset of its sources.
func (r *Registry) Resolve(ctx context.Context, configs []model.SourceConfig) ([]Source, error) {
	sources := make([]Source, 0, len(configs))
	for _, cfg := range configs {
		f, ok := r.factories[cfg.Type]
		if !ok {
			closeSources(sources)
			return nil, errs.Validationf("unknown source type %q", cfg.Type)
		}
		s, err := f(ctx, cfg, r.deps)
		if err != nil {
			closeSources(sources)
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// closeSources releases whatever the sources hold open. Only some source
// kinds own resources, so closing is duck-typed.
func closeSources(sources []Source) {
	for _, s := range sources {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// mapFields renames raw source fields to candidate attribute names. Fields
// without a mapping entry are dropped; a source only contributes what its
// mapping declares.
func mapFields(raw map[string]any, mapping map[string]string) map[string]any {
	if len(raw) == 0 || len(mapping) == 0 {
		return nil
	}
	out := make(map[string]any)
	for from, to := range mapping {
		if v, ok := raw[from]; ok {
			out[to] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
