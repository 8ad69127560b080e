package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/monitoring"
	"github.com/atlasbanco/prospect-engine/internal/store"
)

// Runner executes queued enrichment jobs. Candidates are processed
// concurrently; within one candidate the sources run in order, and on
// conflicting attributes the later source wins.
type Runner struct {
	store       store.Store
	registry    *Registry
	collector   *monitoring.Collector
	concurrency int
	now         func() time.Time
}

// NewRunner builds a Runner. collector may be nil; concurrency below 1
// falls back to 4.
func NewRunner(st store.Store, registry *Registry, collector *monitoring.Collector, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 4
	}
	if collector == nil {
		collector = monitoring.NewCollector(nil)
	}
	return &Runner{
		store:       st,
		registry:    registry,
		collector:   collector,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run claims and executes one job. Source resolution failures fail the
// whole job; per-candidate source errors only show up as result line items.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := r.store.MarkJobRunning(ctx, jobID, r.now()); err != nil {
		return err
	}
	r.collector.JobStarted()

	log := zap.L().With(zap.String("job", jobID))

	sources, err := r.registry.Resolve(ctx, job.Sources)
	if err != nil {
		log.Error("enrich: source resolution failed", zap.Error(err))
		r.collector.JobFinished(true)
		if failErr := r.store.FailJob(ctx, jobID, err.Error(), r.now()); failErr != nil {
			return failErr
		}
		return err
	}
	defer closeSources(sources)

	results := make([]model.CandidateResult, len(job.CandidateIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, candidateID := range job.CandidateIDs {
		i, candidateID := i, candidateID
		g.Go(func() error {
			results[i] = r.enrichOne(gctx, job.Kind, candidateID, sources)
			return nil
		})
	}
	g.Wait()

	if err := r.store.CompleteJob(ctx, jobID, results, r.now()); err != nil {
		return err
	}
	r.collector.JobFinished(false)

	log.Info("enrich: job completed", zap.Int("candidates", len(results)))
	return nil
}

// enrichOne merges every source's attributes into one candidate and writes
// the result back in a single update.
func (r *Runner) enrichOne(ctx context.Context, kind model.Kind, id string, sources []Source) model.CandidateResult {
	result := model.CandidateResult{CandidateID: id}

	c, err := r.store.GetCandidate(ctx, kind, id)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	merged := map[string]any{}
	for _, src := range sources {
		attrs, err := src.Lookup(ctx, c)
		if err != nil {
			r.collector.SourceError(src.Name())
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		for k, v := range attrs {
			merged[k] = v
		}
	}

	result.FieldsEnriched = Apply(c, merged)
	if result.FieldsEnriched == 0 {
		return result
	}

	if err := r.store.UpdateEnrichment(ctx, c); err != nil {
		result.FieldsEnriched = 0
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}

// Poll drains pending jobs until ctx is cancelled, sleeping for interval
// between empty polls.
func (r *Runner) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log := zap.L().With(zap.String("component", "enrich.worker"))
	log.Info("worker started", zap.Duration("poll_interval", interval))

	for {
		if ctx.Err() != nil {
			log.Info("worker stopped")
			return ctx.Err()
		}

		jobID, err := r.store.NextPendingJobID(ctx)
		if err != nil {
			log.Error("enrich: poll failed", zap.Error(err))
		} else if jobID != "" {
			if err := r.Run(ctx, jobID); err != nil {
				log.Error("enrich: job failed", zap.String("job", jobID), zap.Error(err))
			}
			continue
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("worker stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}
