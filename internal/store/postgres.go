package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/atlasbanco/prospect-engine/internal/db"
	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems needing direct
// query access (e.g., bulk candidate imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// candidateTable is the shared column layout of the four candidate tables.
const candidateTable = `(
	id                     TEXT PRIMARY KEY,
	tax_id                 TEXT NOT NULL,
	business_tax_id        TEXT NOT NULL DEFAULT '',
	name                   TEXT NOT NULL DEFAULT '',
	email                  TEXT NOT NULL DEFAULT '',
	phone                  TEXT NOT NULL DEFAULT '',
	notes                  TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL,
	priority               INTEGER NOT NULL DEFAULT 0,
	score                  DOUBLE PRECISION NOT NULL DEFAULT 0,
	conversion_probability DOUBLE PRECISION NOT NULL DEFAULT 0,
	ltv_estimate           DOUBLE PRECISION NOT NULL DEFAULT 0,
	churn_risk             DOUBLE PRECISION NOT NULL DEFAULT 0,
	engagement_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	financial_health_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	combined_score         DOUBLE PRECISION NOT NULL DEFAULT 0,
	address                JSONB,
	behavior               JSONB NOT NULL DEFAULT '{}',
	market_signals         JSONB NOT NULL DEFAULT '{}',
	consumption_profile    JSONB NOT NULL DEFAULT '{}',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_analyzed_at       TIMESTAMPTZ,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
)`

var postgresMigration = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS prospects %[1]s;
CREATE TABLE IF NOT EXISTS cpf_clients %[1]s;
CREATE TABLE IF NOT EXISTS unbanked_companies %[1]s;
CREATE TABLE IF NOT EXISTS clients %[1]s;

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(status);
CREATE INDEX IF NOT EXISTS idx_prospects_score ON prospects(combined_score DESC);
CREATE INDEX IF NOT EXISTS idx_cpf_clients_status ON cpf_clients(status);
CREATE INDEX IF NOT EXISTS idx_cpf_clients_score ON cpf_clients(combined_score DESC);
CREATE INDEX IF NOT EXISTS idx_unbanked_companies_status ON unbanked_companies(status);
CREATE INDEX IF NOT EXISTS idx_unbanked_companies_score ON unbanked_companies(combined_score DESC);

CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	candidate_ids JSONB NOT NULL,
	sources       JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	results       JSONB,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_status ON enrichment_jobs(status, created_at);

CREATE TABLE IF NOT EXISTS enrichment_sources (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	config     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`, candidateTable)

// candidateColumns is the SELECT list shared by every candidate read.
const candidateColumns = `id, tax_id, business_tax_id, name, email, phone, notes, status, priority,
	score, conversion_probability, ltv_estimate, churn_risk, engagement_score,
	financial_health_score, combined_score,
	address, behavior, market_signals, consumption_profile,
	created_at, last_analyzed_at, updated_at`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertCandidate(ctx context.Context, c *model.Candidate) error {
	table, err := tableFor(c.Kind)
	if err != nil {
		return err
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = model.InitialStatus(c.Kind)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	addressJSON, behaviorJSON, signalsJSON, profileJSON, err := marshalCandidateDocs(c)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
		(id, tax_id, business_tax_id, name, email, phone, notes, status, priority,
		 score, conversion_probability, ltv_estimate, churn_risk, engagement_score,
		 financial_health_score, combined_score,
		 address, behavior, market_signals, consumption_profile, created_at, last_analyzed_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`, table),
		c.ID, c.TaxID, c.BusinessTaxID, c.Name, c.Email, c.Phone, c.Notes, string(c.Status), c.Priority,
		c.Score, c.Scores.ConversionProbability, c.Scores.LTVEstimate, c.Scores.ChurnRisk,
		c.Scores.EngagementScore, c.Scores.FinancialHealthScore, c.Scores.CombinedScore,
		addressJSON, behaviorJSON, signalsJSON, profileJSON, c.CreatedAt, c.LastAnalyzedAt, c.CreatedAt,
	)
	if err != nil {
		return errs.Persistence("insert candidate", err)
	}
	return nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, kind model.Kind, id string) (*model.Candidate, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, candidateColumns, table), id)

	c, err := scanCandidate(row, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("candidate", id)
	}
	if err != nil {
		return nil, errs.Persistence("get candidate", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, kind model.Kind, filter model.CandidateFilter) ([]model.Candidate, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE 1=1`, candidateColumns, table)
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.MinScore > 0 {
		args = append(args, filter.MinScore)
		q += fmt.Sprintf(" AND combined_score >= $%d", len(args))
	}
	if filter.MinPriority > 0 {
		args = append(args, filter.MinPriority)
		q += fmt.Sprintf(" AND priority >= $%d", len(args))
	}
	q += " ORDER BY combined_score DESC, created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errs.Persistence("list candidates", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows, kind)
		if err != nil {
			return nil, errs.Persistence("scan candidate", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence("list candidates", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateScores(ctx context.Context, kind model.Kind, id string, scores model.ScoreSet, priority int, analyzedAt time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET
		score = $1, conversion_probability = $2, ltv_estimate = $3, churn_risk = $4,
		engagement_score = $5, financial_health_score = $6, combined_score = $7,
		priority = $8, last_analyzed_at = $9, updated_at = $9
		WHERE id = $10`, table),
		scores.CombinedScore, scores.ConversionProbability, scores.LTVEstimate, scores.ChurnRisk,
		scores.EngagementScore, scores.FinancialHealthScore, scores.CombinedScore,
		priority, analyzedAt, id,
	)
	if err != nil {
		return errs.Persistence("update scores", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("candidate", id)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, kind model.Kind, id string, expected, next model.Status) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`, table),
		string(next), time.Now().UTC(), id, string(expected),
	)
	if err != nil {
		return errs.Persistence("update status", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a lost optimistic-update race.
		if _, getErr := s.GetCandidate(ctx, kind, id); getErr != nil {
			return getErr
		}
		return errs.Conflictf("candidate %s no longer in status %q", id, expected)
	}
	return nil
}

func (s *PostgresStore) UpdateEnrichment(ctx context.Context, c *model.Candidate) error {
	table, err := tableFor(c.Kind)
	if err != nil {
		return err
	}

	addressJSON, behaviorJSON, signalsJSON, profileJSON, err := marshalCandidateDocs(c)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET
		name = $1, email = $2, phone = $3, notes = $4,
		address = $5, behavior = $6, market_signals = $7, consumption_profile = $8,
		updated_at = $9
		WHERE id = $10`, table),
		c.Name, c.Email, c.Phone, c.Notes,
		addressJSON, behaviorJSON, signalsJSON, profileJSON,
		time.Now().UTC(), c.ID,
	)
	if err != nil {
		return errs.Persistence("update enrichment", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("candidate", c.ID)
	}
	return nil
}

// BulkInsertCandidates loads a batch of identified candidates of one kind
// via the COPY protocol.
func (s *PostgresStore) BulkInsertCandidates(ctx context.Context, kind model.Kind, candidates []model.Candidate) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.Status == "" {
			c.Status = model.InitialStatus(kind)
		}
		addressJSON, behaviorJSON, signalsJSON, profileJSON, err := marshalCandidateDocs(c)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			c.ID, c.TaxID, c.BusinessTaxID, c.Name, c.Email, c.Phone, c.Notes,
			string(c.Status), c.Priority, c.Score,
			addressJSON, behaviorJSON, signalsJSON, profileJSON, now, now,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, table, []string{
		"id", "tax_id", "business_tax_id", "name", "email", "phone", "notes",
		"status", "priority", "score",
		"address", "behavior", "market_signals", "consumption_profile",
		"created_at", "updated_at",
	}, rows)
	if err != nil {
		return 0, errs.Persistence("bulk insert candidates", err)
	}
	return n, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.EnrichmentJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = model.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	idsJSON, err := json.Marshal(job.CandidateIDs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal candidate ids")
	}
	sourcesJSON, err := json.Marshal(job.Sources)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_jobs (id, kind, candidate_ids, sources, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, string(job.Kind), idsJSON, sourcesJSON, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return errs.Persistence("create job", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error) {
	var (
		job         model.EnrichmentJob
		kind        string
		status      string
		idsJSON     []byte
		sourcesJSON []byte
		resultsJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, candidate_ids, sources, status, results, error, created_at, started_at, completed_at
		 FROM enrichment_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &kind, &idsJSON, &sourcesJSON, &status, &resultsJSON, &job.Error,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("enrichment job", id)
	}
	if err != nil {
		return nil, errs.Persistence("get job", err)
	}

	job.Kind = model.Kind(kind)
	job.Status = model.JobStatus(status)
	if err := json.Unmarshal(idsJSON, &job.CandidateIDs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal candidate ids")
	}
	if err := json.Unmarshal(sourcesJSON, &job.Sources); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal sources")
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &job.Results); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal results")
		}
	}
	return &job, nil
}

func (s *PostgresStore) NextPendingJobID(ctx context.Context) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM enrichment_jobs WHERE status = 'pending' ORDER BY created_at LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errs.Persistence("next pending job", err)
	}
	return id, nil
}

func (s *PostgresStore) MarkJobRunning(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET status = 'running', started_at = $1 WHERE id = $2 AND status = 'pending'`,
		at, id,
	)
	if err != nil {
		return errs.Persistence("mark job running", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return getErr
		}
		return errs.Conflictf("job %s is not pending", id)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string, results []model.CandidateResult, at time.Time) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET status = 'completed', results = $1, completed_at = $2 WHERE id = $3`,
		resultsJSON, at, id,
	)
	if err != nil {
		return errs.Persistence("complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("enrichment job", id)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id string, jobErr string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET status = 'failed', error = $1, completed_at = $2 WHERE id = $3`,
		jobErr, at, id,
	)
	if err != nil {
		return errs.Persistence("fail job", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("enrichment job", id)
	}
	return nil
}

func (s *PostgresStore) SaveSource(ctx context.Context, kind model.Kind, cfg model.SourceConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source config")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_sources (id, kind, name, config, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, config = EXCLUDED.config`,
		cfg.ID, string(kind), cfg.Name, cfgJSON, time.Now().UTC(),
	)
	if err != nil {
		return errs.Persistence("save source", err)
	}
	return nil
}

func (s *PostgresStore) ListSources(ctx context.Context, kind model.Kind) ([]model.SourceConfig, error) {
	q := `SELECT config FROM enrichment_sources`
	var args []any
	if kind != "" {
		q += ` WHERE kind = $1`
		args = append(args, string(kind))
	}
	q += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errs.Persistence("list sources", err)
	}
	defer rows.Close()

	var out []model.SourceConfig
	for rows.Next() {
		var cfgJSON []byte
		if err := rows.Scan(&cfgJSON); err != nil {
			return nil, errs.Persistence("scan source", err)
		}
		var cfg model.SourceConfig
		if err := json.Unmarshal(cfgJSON, &cfg); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source config")
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence("list sources", err)
	}
	return out, nil
}

// marshalCandidateDocs serializes the nested candidate documents for the
// JSONB columns. Nil maps become empty objects so column defaults hold.
func marshalCandidateDocs(c *model.Candidate) (address, behavior, signals, profile []byte, err error) {
	if c.Address != nil {
		address, err = json.Marshal(c.Address)
		if err != nil {
			return nil, nil, nil, nil, eris.Wrap(err, "store: marshal address")
		}
	}
	behavior, err = json.Marshal(c.Behavior)
	if err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "store: marshal behavior")
	}
	signals, err = json.Marshal(orEmpty(c.MarketSignals))
	if err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "store: marshal market signals")
	}
	profile, err = json.Marshal(orEmpty(c.Profile))
	if err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "store: marshal profile")
	}
	return address, behavior, signals, profile, nil
}

func orEmpty(a model.Attrs) model.Attrs {
	if a == nil {
		return model.Attrs{}
	}
	return a
}

// scanner abstracts pgx.Row and pgx.Rows for scanCandidate.
type scanner interface {
	Scan(dest ...any) error
}

// scanCandidate reads one row in candidateColumns order.
func scanCandidate(row scanner, kind model.Kind) (*model.Candidate, error) {
	var (
		c            model.Candidate
		status       string
		addressJSON  []byte
		behaviorJSON []byte
		signalsJSON  []byte
		profileJSON  []byte
		updatedAt    time.Time
	)

	err := row.Scan(
		&c.ID, &c.TaxID, &c.BusinessTaxID, &c.Name, &c.Email, &c.Phone, &c.Notes, &status, &c.Priority,
		&c.Score, &c.Scores.ConversionProbability, &c.Scores.LTVEstimate, &c.Scores.ChurnRisk,
		&c.Scores.EngagementScore, &c.Scores.FinancialHealthScore, &c.Scores.CombinedScore,
		&addressJSON, &behaviorJSON, &signalsJSON, &profileJSON,
		&c.CreatedAt, &c.LastAnalyzedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Kind = kind
	c.Status = model.Status(status)

	if len(addressJSON) > 0 {
		c.Address = &model.Address{}
		if err := json.Unmarshal(addressJSON, c.Address); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal address")
		}
	}
	if len(behaviorJSON) > 0 {
		if err := json.Unmarshal(behaviorJSON, &c.Behavior); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal behavior")
		}
	}
	if len(signalsJSON) > 0 {
		if err := json.Unmarshal(signalsJSON, &c.MarketSignals); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal market signals")
		}
	}
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &c.Profile); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal profile")
		}
	}
	return &c, nil
}
