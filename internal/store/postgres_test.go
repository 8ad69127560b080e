package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func candidateRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tax_id", "business_tax_id", "name", "email", "phone", "notes", "status", "priority",
		"score", "conversion_probability", "ltv_estimate", "churn_risk", "engagement_score",
		"financial_health_score", "combined_score",
		"address", "behavior", "market_signals", "consumption_profile",
		"created_at", "last_analyzed_at", "updated_at",
	})
}

func TestMigrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS prospects").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCandidate_FillsDefaults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO cpf_clients").
		WithArgs(pgxmock.AnyArg(), "12345678901", "", "Maria Souza", "", "", "", "identified", 0,
			0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c := &model.Candidate{
		Kind:  model.KindCPFClient,
		TaxID: "12345678901",
		Name:  "Maria Souza",
	}
	require.NoError(t, s.InsertCandidate(context.Background(), c))

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, model.StatusIdentified, c.Status)
	assert.False(t, c.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCandidate_UnknownKind(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	err := s.InsertCandidate(context.Background(), &model.Candidate{Kind: "lead"})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestGetCandidate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM prospects WHERE id").
		WithArgs("p-1").
		WillReturnRows(candidateRows().AddRow(
			"p-1", "11222333000181", "", "Padaria Central", "contato@padaria.com", "+5511999990000",
			"", "contacted", 5,
			72.0, 61.0, 432000.0, 35.0, 80.0, 90.0, 72.0,
			[]byte(`{"city":"Sao Paulo","state":"SP"}`),
			[]byte(`{"transaction_volume":120000}`),
			[]byte(`{"business_activity":"high"}`),
			[]byte(`{"credit_score":720}`),
			created, nil, created,
		))

	c, err := s.GetCandidate(context.Background(), model.KindProspect, "p-1")
	require.NoError(t, err)

	assert.Equal(t, model.KindProspect, c.Kind)
	assert.Equal(t, model.StatusContacted, c.Status)
	assert.Equal(t, "Padaria Central", c.Name)
	assert.Equal(t, 72.0, c.Scores.CombinedScore)
	require.NotNil(t, c.Address)
	assert.Equal(t, "SP", c.Address.State)
	assert.Equal(t, 120000.0, c.Behavior.TransactionVolume)
	assert.Equal(t, "high", c.MarketSignals.Str("business_activity"))
	assert.Equal(t, 720.0, c.Profile.Float("credit_score", 0))
	assert.Nil(t, c.LastAnalyzedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCandidate_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM unbanked_companies WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCandidate(context.Background(), model.KindUnbanked, "missing")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCandidates_Filtered(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM prospects WHERE 1=1 AND status = (.+) AND combined_score >=").
		WithArgs("pending", 70.0, 10).
		WillReturnRows(candidateRows().AddRow(
			"p-2", "99888777000160", "", "Mercearia Sul", "", "",
			"", "pending", 0,
			75.0, 60.0, 300000.0, 40.0, 50.0, 70.0, 75.0,
			nil, []byte(`{}`), []byte(`{}`), []byte(`{}`),
			created, nil, created,
		))

	got, err := s.ListCandidates(context.Background(), model.KindProspect, model.CandidateFilter{
		Status:   model.StatusPending,
		MinScore: 70,
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-2", got[0].ID)
	assert.Nil(t, got[0].Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	scores := model.ScoreSet{
		ConversionProbability: 61,
		LTVEstimate:           432000,
		ChurnRisk:             35,
		EngagementScore:       100,
		FinancialHealthScore:  97.5,
		CombinedScore:         79,
	}
	mock.ExpectExec("UPDATE prospects SET").
		WithArgs(79.0, 61.0, 432000.0, 35.0, 100.0, 97.5, 79.0, 5, at, "p-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateScores(context.Background(), model.KindProspect, "p-1", scores, 5, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateScores_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("UPDATE clients SET").
		WithArgs(0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0, pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateScores(context.Background(), model.KindClient, "gone", model.ScoreSet{}, 0, time.Now())
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestUpdateStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("UPDATE cpf_clients SET status").
		WithArgs("contacted", pgxmock.AnyArg(), "c-1", "identified").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateStatus(context.Background(), model.KindCPFClient, "c-1",
		model.StatusIdentified, model.StatusContacted)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_LostRace(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Conditional update misses because another writer moved the row first.
	mock.ExpectExec("UPDATE cpf_clients SET status").
		WithArgs("contacted", pgxmock.AnyArg(), "c-1", "identified").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM cpf_clients WHERE id").
		WithArgs("c-1").
		WillReturnRows(candidateRows().AddRow(
			"c-1", "12345678901", "", "Maria Souza", "", "",
			"", "converted", 0,
			0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
			nil, []byte(`{}`), []byte(`{}`), []byte(`{}`),
			created, nil, created,
		))

	err := s.UpdateStatus(context.Background(), model.KindCPFClient, "c-1",
		model.StatusIdentified, model.StatusContacted)
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_RowMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("UPDATE prospects SET status").
		WithArgs("contacted", pgxmock.AnyArg(), "ghost", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM prospects WHERE id").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	err := s.UpdateStatus(context.Background(), model.KindProspect, "ghost",
		model.StatusPending, model.StatusContacted)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestCreateJob_FillsDefaults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO enrichment_jobs").
		WithArgs(pgxmock.AnyArg(), "prospect", pgxmock.AnyArg(), pgxmock.AnyArg(), "pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job := &model.EnrichmentJob{
		Kind:         model.KindProspect,
		CandidateIDs: []string{"p-1", "p-2"},
		Sources: []model.SourceConfig{
			{Name: "receita-ws", Type: model.SourceExternalAPI},
		},
	}
	require.NoError(t, s.CreateJob(context.Background(), job))

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobPending, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	started := created.Add(time.Minute)
	completed := created.Add(2 * time.Minute)
	mock.ExpectQuery("SELECT (.+) FROM enrichment_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "candidate_ids", "sources", "status", "results", "error",
			"created_at", "started_at", "completed_at",
		}).AddRow(
			"job-1", "prospect",
			[]byte(`["p-1"]`), []byte(`[{"name":"receita-ws","type":"external_api"}]`), "completed",
			[]byte(`[{"candidate_id":"p-1","fields_enriched":2}]`), "",
			created, &started, &completed,
		))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, []string{"p-1"}, job.CandidateIDs)
	require.Len(t, job.Sources, 1)
	assert.Equal(t, "receita-ws", job.Sources[0].Name)
	require.Len(t, job.Results, 1)
	assert.Equal(t, 2, job.Results[0].FieldsEnriched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM enrichment_jobs WHERE id").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestNextPendingJobID_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT id FROM enrichment_jobs WHERE status = 'pending'").
		WillReturnError(pgx.ErrNoRows)

	id, err := s.NextPendingJobID(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestMarkJobRunning_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("UPDATE enrichment_jobs SET status = 'running'").
		WithArgs(pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM enrichment_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "candidate_ids", "sources", "status", "results", "error",
			"created_at", "started_at", "completed_at",
		}).AddRow(
			"job-1", "prospect", []byte(`[]`), []byte(`[]`), "running", nil, "",
			created, nil, nil,
		))

	err := s.MarkJobRunning(context.Background(), "job-1", time.Now().UTC())
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
}

func TestFailJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE enrichment_jobs SET status = 'failed'").
		WithArgs("source resolve: no such source", at, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailJob(context.Background(), "job-1", "source resolve: no such source", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndListSources(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO enrichment_sources").
		WithArgs(pgxmock.AnyArg(), "prospect", "receita-ws", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT config FROM enrichment_sources WHERE kind").
		WithArgs("prospect").
		WillReturnRows(pgxmock.NewRows([]string{"config"}).AddRow(
			[]byte(`{"id":"src-1","name":"receita-ws","type":"external_api","base_url":"https://api.example.com"}`),
		))

	cfg := model.SourceConfig{Name: "receita-ws", Type: model.SourceExternalAPI, BaseURL: "https://api.example.com"}
	require.NoError(t, s.SaveSource(context.Background(), model.KindProspect, cfg))

	got, err := s.ListSources(context.Background(), model.KindProspect)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "receita-ws", got[0].Name)
	assert.Equal(t, model.SourceExternalAPI, got[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertCandidates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"unbanked_companies"}, []string{
		"id", "tax_id", "business_tax_id", "name", "email", "phone", "notes",
		"status", "priority", "score",
		"address", "behavior", "market_signals", "consumption_profile",
		"created_at", "updated_at",
	}).WillReturnResult(2)

	batch := []model.Candidate{
		{TaxID: "11222333000181", Name: "Padaria Central"},
		{TaxID: "99888777000160", Name: "Mercearia Sul"},
	}
	n, err := s.BulkInsertCandidates(context.Background(), model.KindUnbanked, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, model.StatusIdentified, batch[0].Status)
	assert.NotEmpty(t, batch[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
