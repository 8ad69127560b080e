package enrich

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
)

// databaseSource looks candidates up in an external PostgreSQL database.
// The configured query receives the candidate's normalized tax id as $1 and
// is expected to return at most one row.
type databaseSource struct {
	name    string
	query   string
	mapping map[string]string
	pool    *pgxpool.Pool
}

// newDatabaseSource opens and pings the pool up front so a dead DSN fails
// the job at resolve time instead of producing a line-item error per
// candidate.
func newDatabaseSource(ctx context.Context, cfg model.SourceConfig, deps Deps) (Source, error) {
	if cfg.DSN == "" || cfg.Query == "" {
		return nil, errs.Validationf("database source %q: dsn and query required", cfg.Name)
	}
	if len(cfg.FieldMapping) == 0 {
		return nil, errs.Validationf("database source %q: field mapping required", cfg.Name)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, &errs.UpstreamSourceError{Source: cfg.Name, Err: eris.Wrapf(err, "connect %s", cfg.Name)}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &errs.UpstreamSourceError{Source: cfg.Name, Err: eris.Wrapf(err, "ping %s", cfg.Name)}
	}
	return &databaseSource{
		name:    cfg.Name,
		query:   cfg.Query,
		mapping: cfg.FieldMapping,
		pool:    pool,
	}, nil
}

func (s *databaseSource) Name() string { return s.name }

func (s *databaseSource) Close() { s.pool.Close() }

func (s *databaseSource) Lookup(ctx context.Context, c *model.Candidate) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, s.query, digits(c.TaxID))
	if err != nil {
		return nil, &errs.UpstreamSourceError{Source: s.name, Err: err}
	}
	defer rows.Close()

	raw, err := scanRowMap(rows)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.UpstreamSourceError{Source: s.name, Err: err}
	}
	return mapFields(raw, s.mapping), nil
}

// scanRowMap reads the first row into a column-keyed map.
func scanRowMap(rows pgx.Rows) (map[string]any, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	raw := make(map[string]any, len(values))
	for i, fd := range rows.FieldDescriptions() {
		raw[string(fd.Name)] = values[i]
	}
	return raw, nil
}
