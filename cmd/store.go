package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/atlasbanco/prospect-engine/internal/enrich"
	"github.com/atlasbanco/prospect-engine/internal/resilience"
	"github.com/atlasbanco/prospect-engine/internal/store"
)

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "prospect.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("database URL is required (PROSPECT_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newBreakers and newRegistry share one wiring between serve and worker so
// both report the same breaker states through the collector.
func newBreakers() *resilience.SourceBreakers {
	return resilience.NewSourceBreakers(cfg.Enrichment.Breaker)
}

func newRegistry(breakers *resilience.SourceBreakers) *enrich.Registry {
	return enrich.NewRegistry(enrich.Deps{
		HTTPClient:    &http.Client{Timeout: cfg.Enrichment.HTTPTimeout()},
		Retry:         cfg.Retry,
		Breakers:      breakers,
		RatePerSecond: cfg.Enrichment.RatePerSecond,
	})
}
