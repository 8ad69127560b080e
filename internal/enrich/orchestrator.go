package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/store"
)

// Orchestrator accepts enrichment requests and exposes job status. The
// actual work happens asynchronously in the Runner; Start only validates
// and enqueues.
type Orchestrator struct {
	store store.Store
}

// NewOrchestrator builds an Orchestrator over the store.
func NewOrchestrator(st store.Store) *Orchestrator {
	return &Orchestrator{store: st}
}

// Start validates the request and creates a pending job. Every candidate
// must exist and still be in the workflow; terminal candidates no longer
// accept enrichment.
func (o *Orchestrator) Start(ctx context.Context, kind model.Kind, candidateIDs []string, sources []model.SourceConfig) (*model.EnrichmentJob, error) {
	if !kind.Qualifiable() {
		return nil, errs.Validationf("kind %q does not participate in qualification", kind)
	}
	if len(candidateIDs) == 0 {
		return nil, errs.Validationf("candidate ids required")
	}
	if len(sources) == 0 {
		return nil, errs.Validationf("at least one source required")
	}
	for _, cfg := range sources {
		if !cfg.Type.Valid() {
			return nil, errs.Validationf("unknown source type %q", cfg.Type)
		}
	}

	for _, id := range candidateIDs {
		c, err := o.store.GetCandidate(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		if c.Status.Terminal() {
			return nil, errs.Validationf("candidate %s is %s and cannot be enriched", id, c.Status)
		}
	}

	job := &model.EnrichmentJob{
		Kind:         kind,
		CandidateIDs: candidateIDs,
		Sources:      sources,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	// Keep the source catalog current so operators can see which sources a
	// pipeline has been enriched from. Catalog failures never block the job.
	for _, cfg := range sources {
		if cfg.Name == "" {
			continue
		}
		if err := o.store.SaveSource(ctx, kind, cfg); err != nil {
			zap.L().Warn("enrich: save source config", zap.String("source", cfg.Name), zap.Error(err))
		}
	}

	zap.L().Info("enrich: job queued",
		zap.String("job", job.ID),
		zap.String("kind", string(kind)),
		zap.Int("candidates", len(candidateIDs)),
		zap.Int("sources", len(sources)),
	)
	return job, nil
}

// Status returns the job as stored, including per-candidate results once
// the job finished.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*model.EnrichmentJob, error) {
	return o.store.GetJob(ctx, jobID)
}
