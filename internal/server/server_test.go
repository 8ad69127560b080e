package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasbanco/prospect-engine/internal/enrich"
	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/qualify"
	"github.com/atlasbanco/prospect-engine/internal/scoring"
	"github.com/atlasbanco/prospect-engine/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	s := New(st, qualify.New(st, scoring.Weights{}), enrich.NewOrchestrator(st), nil)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func TestCreateAndGetCandidate(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/prospect/candidates", map[string]any{
		"tax_id": "11222333000181",
		"name":   "Padaria Central",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created model.Candidate
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusPending, created.Status)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/prospect/candidates/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.Candidate
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "Padaria Central", got.Name)
}

func TestCreateCandidate_Validation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/prospect/candidates", map[string]any{
		"name": "No Tax ID",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/lead/candidates", map[string]any{
		"tax_id": "123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown kind")
}

func TestGetCandidate_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/prospect/candidates/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransitionFlow(t *testing.T) {
	ts, st := newTestServer(t)
	ctx := context.Background()

	c := &model.Candidate{Kind: model.KindCPFClient, TaxID: "12345678901", Name: "Maria"}
	require.NoError(t, st.InsertCandidate(ctx, c))
	base := ts.URL + "/api/v1/cpf_client/candidates/" + c.ID + "/transitions"

	resp, body := doJSON(t, http.MethodPost, base, map[string]string{"action": "mark_contacted"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var got model.Candidate
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, model.StatusContacted, got.Status)

	// Converting a cpf_client yields the new prospect record.
	resp, body = doJSON(t, http.MethodPost, base, map[string]string{"action": "convert"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, model.KindProspect, got.Kind)
	assert.Equal(t, model.StatusPending, got.Status)

	// The source is now terminal; further workflow actions conflict.
	resp, _ = doJSON(t, http.MethodPost, base, map[string]string{"action": "reject"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Recalculate stays legal on terminal candidates.
	resp, body = doJSON(t, http.MethodPost, base, map[string]string{"action": "recalculate"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &got))
	assert.NotNil(t, got.LastAnalyzedAt)

	resp, _ = doJSON(t, http.MethodPost, base, map[string]string{"action": "promote"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown action")
}

func TestListCandidates_Filters(t *testing.T) {
	ts, st := newTestServer(t)
	ctx := context.Background()

	for i, name := range []string{"Low", "High"} {
		c := &model.Candidate{Kind: model.KindProspect, TaxID: fmt.Sprintf("%014d", i), Name: name}
		require.NoError(t, st.InsertCandidate(ctx, c))
		score := 40.0
		if name == "High" {
			score = 90
		}
		require.NoError(t, st.UpdateScores(ctx, model.KindProspect, c.ID,
			model.ScoreSet{CombinedScore: score}, scoring.Priority(score), c.CreatedAt))
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/prospect/candidates/?min_score=50", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Candidates []model.Candidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "High", out.Candidates[0].Name)
	assert.Equal(t, 10, out.Candidates[0].Priority)
}

func TestEnrichmentEndpoints(t *testing.T) {
	ts, st := newTestServer(t)
	ctx := context.Background()

	c := &model.Candidate{Kind: model.KindProspect, TaxID: "11222333000181", Name: "Padaria"}
	require.NoError(t, st.InsertCandidate(ctx, c))

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/prospect/enrichment", map[string]any{
		"candidate_ids": []string{c.ID},
		"sources": []map[string]any{
			{"name": "receita-ws", "type": "external_api", "base_url": "https://api.example.com",
				"field_mapping": map[string]string{"email": "contact_email"}},
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var job model.EnrichmentJob
	require.NoError(t, json.Unmarshal(body, &job))
	assert.Equal(t, model.JobPending, job.Status)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/enrichment/"+job.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &job))
	assert.Equal(t, model.JobPending, job.Status)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/enrichment/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/prospect/enrichment", map[string]any{
		"candidate_ids": []string{},
		"sources":       []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScoreEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	payload := map[string]any{
		"candidate": map[string]any{
			"kind":   "prospect",
			"tax_id": "11222333000181",
			"consumption_profile": map[string]any{
				"estimated_revenue": 100000,
			},
		},
	}

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/scores", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var set model.ScoreSet
	require.NoError(t, json.Unmarshal(body, &set))
	assert.Equal(t, 300000.0, set.LTVEstimate) // 100000 * 3
	assert.Greater(t, set.CombinedScore, 0.0)
	assert.LessOrEqual(t, set.CombinedScore, 100.0)

	// A pure-LTV weighting makes the combined score the normalized LTV.
	payload["weights"] = map[string]any{"ltv": 1.0}
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/scores", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &set))
	assert.Equal(t, 30.0, set.CombinedScore) // 300000/1000000*100
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Contains(t, snap, "transitions")
}
