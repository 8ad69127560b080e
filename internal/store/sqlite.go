package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
)

// SQLiteStore implements Store on an embedded SQLite database. Used for
// single-node deployments and local evaluation runs where standing up
// PostgreSQL is not worth it.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path. Use ":memory:" for an
// ephemeral store.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// The embedded engine serializes writes; a single connection avoids
	// SQLITE_BUSY churn under the worker.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteCandidateTable = `(
	id                     TEXT PRIMARY KEY,
	tax_id                 TEXT NOT NULL,
	business_tax_id        TEXT NOT NULL DEFAULT '',
	name                   TEXT NOT NULL DEFAULT '',
	email                  TEXT NOT NULL DEFAULT '',
	phone                  TEXT NOT NULL DEFAULT '',
	notes                  TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL,
	priority               INTEGER NOT NULL DEFAULT 0,
	score                  REAL NOT NULL DEFAULT 0,
	conversion_probability REAL NOT NULL DEFAULT 0,
	ltv_estimate           REAL NOT NULL DEFAULT 0,
	churn_risk             REAL NOT NULL DEFAULT 0,
	engagement_score       REAL NOT NULL DEFAULT 0,
	financial_health_score REAL NOT NULL DEFAULT 0,
	combined_score         REAL NOT NULL DEFAULT 0,
	address                TEXT,
	behavior               TEXT NOT NULL DEFAULT '{}',
	market_signals         TEXT NOT NULL DEFAULT '{}',
	consumption_profile    TEXT NOT NULL DEFAULT '{}',
	created_at             TEXT NOT NULL,
	last_analyzed_at       TEXT,
	updated_at             TEXT NOT NULL
)`

var sqliteMigration = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS prospects %[1]s;
CREATE TABLE IF NOT EXISTS cpf_clients %[1]s;
CREATE TABLE IF NOT EXISTS unbanked_companies %[1]s;
CREATE TABLE IF NOT EXISTS clients %[1]s;

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(status);
CREATE INDEX IF NOT EXISTS idx_cpf_clients_status ON cpf_clients(status);
CREATE INDEX IF NOT EXISTS idx_unbanked_companies_status ON unbanked_companies(status);

CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	candidate_ids TEXT NOT NULL,
	sources       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	results       TEXT,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	started_at    TEXT,
	completed_at  TEXT
);

CREATE TABLE IF NOT EXISTS enrichment_sources (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	config     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`, sqliteCandidateTable)

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) InsertCandidate(ctx context.Context, c *model.Candidate) error {
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

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(id, tax_id, business_tax_id, name, email, phone, notes, status, priority,
		 score, conversion_probability, ltv_estimate, churn_risk, engagement_score,
		 financial_health_score, combined_score,
		 address, behavior, market_signals, consumption_profile, created_at, last_analyzed_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, table),
		c.ID, c.TaxID, c.BusinessTaxID, c.Name, c.Email, c.Phone, c.Notes, string(c.Status), c.Priority,
		c.Score, c.Scores.ConversionProbability, c.Scores.LTVEstimate, c.Scores.ChurnRisk,
		c.Scores.EngagementScore, c.Scores.FinancialHealthScore, c.Scores.CombinedScore,
		nullableJSON(addressJSON), string(behaviorJSON), string(signalsJSON), string(profileJSON),
		fmtTime(c.CreatedAt), fmtTimePtr(c.LastAnalyzedAt), fmtTime(c.CreatedAt),
	)
	if err != nil {
		return errs.Persistence("insert candidate", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (s *SQLiteStore) GetCandidate(ctx context.Context, kind model.Kind, id string) (*model.Candidate, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, candidateColumns, table), id)

	c, err := scanSQLiteCandidate(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("candidate", id)
	}
	if err != nil {
		return nil, errs.Persistence("get candidate", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, kind model.Kind, filter model.CandidateFilter) ([]model.Candidate, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE 1=1`, candidateColumns, table)
	var args []any
	if filter.Status != "" {
		q += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.MinScore > 0 {
		q += " AND combined_score >= ?"
		args = append(args, filter.MinScore)
	}
	if filter.MinPriority > 0 {
		q += " AND priority >= ?"
		args = append(args, filter.MinPriority)
	}
	q += " ORDER BY combined_score DESC, created_at DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// sqlite requires LIMIT before OFFSET; -1 means unbounded.
		q += " LIMIT -1"
	}
	if filter.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.Persistence("list candidates", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanSQLiteCandidate(rows, kind)
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

func (s *SQLiteStore) UpdateScores(ctx context.Context, kind model.Kind, id string, scores model.ScoreSet, priority int, analyzedAt time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET
		score = ?, conversion_probability = ?, ltv_estimate = ?, churn_risk = ?,
		engagement_score = ?, financial_health_score = ?, combined_score = ?,
		priority = ?, last_analyzed_at = ?, updated_at = ?
		WHERE id = ?`, table),
		scores.CombinedScore, scores.ConversionProbability, scores.LTVEstimate, scores.ChurnRisk,
		scores.EngagementScore, scores.FinancialHealthScore, scores.CombinedScore,
		priority, fmtTime(analyzedAt), fmtTime(analyzedAt), id,
	)
	if err != nil {
		return errs.Persistence("update scores", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("candidate", id)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, kind model.Kind, id string, expected, next model.Status) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = ?, updated_at = ? WHERE id = ? AND status = ?`, table),
		string(next), fmtTime(time.Now()), id, string(expected),
	)
	if err != nil {
		return errs.Persistence("update status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.GetCandidate(ctx, kind, id); getErr != nil {
			return getErr
		}
		return errs.Conflictf("candidate %s no longer in status %q", id, expected)
	}
	return nil
}

func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, c *model.Candidate) error {
	table, err := tableFor(c.Kind)
	if err != nil {
		return err
	}
	addressJSON, behaviorJSON, signalsJSON, profileJSON, err := marshalCandidateDocs(c)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET
		name = ?, email = ?, phone = ?, notes = ?,
		address = ?, behavior = ?, market_signals = ?, consumption_profile = ?,
		updated_at = ?
		WHERE id = ?`, table),
		c.Name, c.Email, c.Phone, c.Notes,
		nullableJSON(addressJSON), string(behaviorJSON), string(signalsJSON), string(profileJSON),
		fmtTime(time.Now()), c.ID,
	)
	if err != nil {
		return errs.Persistence("update enrichment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("candidate", c.ID)
	}
	return nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.EnrichmentJob) error {
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
		return eris.Wrap(err, "sqlite: marshal candidate ids")
	}
	sourcesJSON, err := json.Marshal(job.Sources)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_jobs (id, kind, candidate_ids, sources, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), string(idsJSON), string(sourcesJSON), string(job.Status), fmtTime(job.CreatedAt),
	)
	if err != nil {
		return errs.Persistence("create job", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error) {
	var (
		job         model.EnrichmentJob
		kind        string
		status      string
		idsJSON     []byte
		sourcesJSON []byte
		resultsJSON sql.NullString
		createdAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, candidate_ids, sources, status, results, error, created_at, started_at, completed_at
		 FROM enrichment_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &kind, &idsJSON, &sourcesJSON, &status, &resultsJSON, &job.Error,
		&createdAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("enrichment job", id)
	}
	if err != nil {
		return nil, errs.Persistence("get job", err)
	}

	job.Kind = model.Kind(kind)
	job.Status = model.JobStatus(status)
	if err := json.Unmarshal(idsJSON, &job.CandidateIDs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal candidate ids")
	}
	if err := json.Unmarshal(sourcesJSON, &job.Sources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal sources")
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &job.Results); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal results")
		}
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse created_at")
	}
	if job.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse started_at")
	}
	if job.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse completed_at")
	}
	return &job, nil
}

func (s *SQLiteStore) NextPendingJobID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM enrichment_jobs WHERE status = 'pending' ORDER BY created_at LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errs.Persistence("next pending job", err)
	}
	return id, nil
}

func (s *SQLiteStore) MarkJobRunning(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = 'running', started_at = ? WHERE id = ? AND status = 'pending'`,
		fmtTime(at), id,
	)
	if err != nil {
		return errs.Persistence("mark job running", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return getErr
		}
		return errs.Conflictf("job %s is not pending", id)
	}
	return nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, results []model.CandidateResult, at time.Time) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = 'completed', results = ?, completed_at = ? WHERE id = ?`,
		string(resultsJSON), fmtTime(at), id,
	)
	if err != nil {
		return errs.Persistence("complete job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("enrichment job", id)
	}
	return nil
}

func (s *SQLiteStore) FailJob(ctx context.Context, id string, jobErr string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = 'failed', error = ?, completed_at = ? WHERE id = ?`,
		jobErr, fmtTime(at), id,
	)
	if err != nil {
		return errs.Persistence("fail job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("enrichment job", id)
	}
	return nil
}

func (s *SQLiteStore) SaveSource(ctx context.Context, kind model.Kind, cfg model.SourceConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal source config")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_sources (id, kind, name, config, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, config = excluded.config`,
		cfg.ID, string(kind), cfg.Name, string(cfgJSON), fmtTime(time.Now()),
	)
	if err != nil {
		return errs.Persistence("save source", err)
	}
	return nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, kind model.Kind) ([]model.SourceConfig, error) {
	q := `SELECT config FROM enrichment_sources`
	var args []any
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	q += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, q, args...)
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
			return nil, eris.Wrap(err, "sqlite: unmarshal source config")
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence("list sources", err)
	}
	return out, nil
}

// scanSQLiteCandidate mirrors scanCandidate for database/sql row types, with
// timestamps stored as RFC 3339 text.
func scanSQLiteCandidate(row scanner, kind model.Kind) (*model.Candidate, error) {
	var (
		c              model.Candidate
		status         string
		addressJSON    sql.NullString
		behaviorJSON   []byte
		signalsJSON    []byte
		profileJSON    []byte
		createdAt      string
		lastAnalyzedAt sql.NullString
		updatedAt      string
	)

	err := row.Scan(
		&c.ID, &c.TaxID, &c.BusinessTaxID, &c.Name, &c.Email, &c.Phone, &c.Notes, &status, &c.Priority,
		&c.Score, &c.Scores.ConversionProbability, &c.Scores.LTVEstimate, &c.Scores.ChurnRisk,
		&c.Scores.EngagementScore, &c.Scores.FinancialHealthScore, &c.Scores.CombinedScore,
		&addressJSON, &behaviorJSON, &signalsJSON, &profileJSON,
		&createdAt, &lastAnalyzedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Kind = kind
	c.Status = model.Status(status)

	if addressJSON.Valid && addressJSON.String != "" {
		c.Address = &model.Address{}
		if err := json.Unmarshal([]byte(addressJSON.String), c.Address); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal address")
		}
	}
	if len(behaviorJSON) > 0 {
		if err := json.Unmarshal(behaviorJSON, &c.Behavior); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal behavior")
		}
	}
	if len(signalsJSON) > 0 {
		if err := json.Unmarshal(signalsJSON, &c.MarketSignals); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal market signals")
		}
	}
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &c.Profile); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal profile")
		}
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse created_at")
	}
	if c.LastAnalyzedAt, err = parseTimePtr(lastAnalyzedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse last_analyzed_at")
	}
	return &c, nil
}
