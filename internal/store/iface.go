package store

import (
	"context"
	"time"

	"github.com/atlasbanco/prospect-engine/internal/model"
)

// Store defines the persistence interface for the qualification engine.
//
// UpdateStatus is a conditional update: it only applies while the row still
// holds the expected status, which is how concurrent converts on the same
// candidate are serialized. UpdateScores writes the complete score set in a
// single statement so partial score rows can never be observed.
type Store interface {
	// Candidates
	InsertCandidate(ctx context.Context, c *model.Candidate) error
	GetCandidate(ctx context.Context, kind model.Kind, id string) (*model.Candidate, error)
	ListCandidates(ctx context.Context, kind model.Kind, filter model.CandidateFilter) ([]model.Candidate, error)
	UpdateScores(ctx context.Context, kind model.Kind, id string, scores model.ScoreSet, priority int, analyzedAt time.Time) error
	UpdateStatus(ctx context.Context, kind model.Kind, id string, expected, next model.Status) error
	UpdateEnrichment(ctx context.Context, c *model.Candidate) error

	// Enrichment jobs
	CreateJob(ctx context.Context, job *model.EnrichmentJob) error
	GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error)
	NextPendingJobID(ctx context.Context) (string, error)
	MarkJobRunning(ctx context.Context, id string, at time.Time) error
	CompleteJob(ctx context.Context, id string, results []model.CandidateResult, at time.Time) error
	FailJob(ctx context.Context, id string, jobErr string, at time.Time) error

	// Source catalog
	SaveSource(ctx context.Context, kind model.Kind, cfg model.SourceConfig) error
	ListSources(ctx context.Context, kind model.Kind) ([]model.SourceConfig, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
