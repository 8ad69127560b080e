// Package qualify drives candidates through the qualification workflow.
// All three pipelines share one transition table; they differ only in their
// entry state and in where a conversion lands.
package qualify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/scoring"
	"github.com/atlasbanco/prospect-engine/internal/store"
)

// Action is a workflow operation on a candidate.
type Action string

const (
	ActionMarkContacted Action = "mark_contacted"
	ActionConvert       Action = "convert"
	ActionReject        Action = "reject"
	ActionRecalculate   Action = "recalculate"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionMarkContacted, ActionConvert, ActionReject, ActionRecalculate:
		return true
	}
	return false
}

// convertTargets maps each pipeline to the kind a conversion produces.
// Individual clients graduate into the business prospect pipeline; the two
// business pipelines land directly in the client book.
var convertTargets = map[model.Kind]model.Kind{
	model.KindCPFClient: model.KindProspect,
	model.KindProspect:  model.KindClient,
	model.KindUnbanked:  model.KindClient,
}

// Engine applies workflow actions against the store.
type Engine struct {
	store   store.Store
	weights scoring.Weights
	now     func() time.Time
}

// New builds an Engine. Zero weights fall back to the defaults inside the
// combiner.
func New(st store.Store, w scoring.Weights) *Engine {
	return &Engine{store: st, weights: w, now: func() time.Time { return time.Now().UTC() }}
}

// TransitionInput carries the optional payload of a workflow action.
type TransitionInput struct {
	Reason string `json:"reason,omitempty"`
}

// Transition dispatches one workflow action. It returns the candidate the
// caller should look at afterwards: the updated source candidate, or for a
// conversion the newly created target record.
func (e *Engine) Transition(ctx context.Context, kind model.Kind, id string, action Action, in TransitionInput) (*model.Candidate, error) {
	if !action.Valid() {
		return nil, errs.Validationf("unknown action %q", action)
	}
	switch action {
	case ActionMarkContacted:
		return e.MarkContacted(ctx, kind, id)
	case ActionConvert:
		return e.Convert(ctx, kind, id)
	case ActionReject:
		return e.Reject(ctx, kind, id, in.Reason)
	default:
		return e.Recalculate(ctx, kind, id)
	}
}

// load fetches the candidate and rejects kinds outside the workflow.
func (e *Engine) load(ctx context.Context, kind model.Kind, id string) (*model.Candidate, error) {
	if !kind.Qualifiable() {
		return nil, errs.Validationf("kind %q does not participate in qualification", kind)
	}
	return e.store.GetCandidate(ctx, kind, id)
}

// MarkContacted moves a candidate from its entry state to contacted.
func (e *Engine) MarkContacted(ctx context.Context, kind model.Kind, id string) (*model.Candidate, error) {
	c, err := e.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Initial() {
		return nil, &errs.IllegalTransitionError{Action: string(ActionMarkContacted), From: string(c.Status)}
	}
	if err := e.store.UpdateStatus(ctx, kind, id, c.Status, model.StatusContacted); err != nil {
		return nil, err
	}
	c.Status = model.StatusContacted
	zap.L().Info("qualify: candidate contacted",
		zap.String("kind", string(kind)), zap.String("id", id))
	return c, nil
}

// Reject moves a candidate to rejected. A non-empty reason is appended to
// the candidate's notes after the status flip.
func (e *Engine) Reject(ctx context.Context, kind model.Kind, id, reason string) (*model.Candidate, error) {
	c, err := e.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Initial() && c.Status != model.StatusContacted {
		return nil, &errs.IllegalTransitionError{Action: string(ActionReject), From: string(c.Status)}
	}
	if err := e.store.UpdateStatus(ctx, kind, id, c.Status, model.StatusRejected); err != nil {
		return nil, err
	}
	c.Status = model.StatusRejected
	if reason != "" {
		c.Notes = appendNote(c.Notes, "Rejected: "+reason)
		if err := e.store.UpdateEnrichment(ctx, c); err != nil {
			zap.L().Warn("qualify: rejection reason not saved",
				zap.String("id", id), zap.Error(err))
		}
	}
	zap.L().Info("qualify: candidate rejected",
		zap.String("kind", string(kind)), zap.String("id", id))
	return c, nil
}

// Convert creates the target record for the candidate and then flips the
// source to converted. The insert happens first: if it fails, the source
// status is untouched and the action can be retried. If the status flip then
// loses a race, the conflict surfaces to the caller and the already created
// target stays in place for reconciliation.
func (e *Engine) Convert(ctx context.Context, kind model.Kind, id string) (*model.Candidate, error) {
	c, err := e.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Initial() && c.Status != model.StatusContacted {
		return nil, &errs.IllegalTransitionError{Action: string(ActionConvert), From: string(c.Status)}
	}

	target := e.buildTarget(c)
	if err := e.store.InsertCandidate(ctx, target); err != nil {
		return nil, err
	}
	if err := e.store.UpdateStatus(ctx, kind, id, c.Status, model.StatusConverted); err != nil {
		return nil, err
	}

	zap.L().Info("qualify: candidate converted",
		zap.String("from_kind", string(kind)), zap.String("from_id", id),
		zap.String("to_kind", string(target.Kind)), zap.String("to_id", target.ID))
	return target, nil
}

// buildTarget clones the candidate into its conversion target kind with a
// provenance note. Scores and workflow state do not carry over.
func (e *Engine) buildTarget(c *model.Candidate) *model.Candidate {
	targetKind := convertTargets[c.Kind]
	return &model.Candidate{
		Kind:          targetKind,
		TaxID:         c.TaxID,
		BusinessTaxID: c.BusinessTaxID,
		Name:          c.Name,
		Email:         c.Email,
		Phone:         c.Phone,
		Address:       c.Address,
		Behavior:      c.Behavior,
		MarketSignals: c.MarketSignals.Clone(),
		Profile:       c.Profile.Clone(),
		Status:        model.InitialStatus(targetKind),
		Notes:         appendNote(c.Notes, fmt.Sprintf("Converted from %s %s", c.Kind, c.ID)),
		CreatedAt:     e.now(),
	}
}

// Recalculate recomputes every metric and persists the complete score set.
// Legal from any state: scores on converted or rejected candidates stay
// meaningful for book analysis.
func (e *Engine) Recalculate(ctx context.Context, kind model.Kind, id string) (*model.Candidate, error) {
	c, err := e.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	now := e.now()
	set := scoring.Combine(c, e.weights, now)
	priority := scoring.Priority(set.CombinedScore)

	if err := e.store.UpdateScores(ctx, kind, id, set, priority, now); err != nil {
		return nil, err
	}

	c.Scores = set
	c.Score = set.CombinedScore
	c.Priority = priority
	c.LastAnalyzedAt = &now
	return c, nil
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
