package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/atlasbanco/prospect-engine/internal/model"
)

func richCandidate(now time.Time) *model.Candidate {
	return &model.Candidate{
		ID:    "cand-1",
		Kind:  model.KindProspect,
		TaxID: "11222333000181",
		Score: 85,
		Behavior: model.BehaviorData{
			TransactionVolume:     12000,
			TransactionFrequency:  25,
			InteractionFrequency:  25,
			Channels:              []string{"app", "web", "branch"},
			LastInteraction:       ptrTime(now.AddDate(0, 0, -2)),
			ServiceUsageFrequency: 25,
		},
		MarketSignals: model.Attrs{
			"business_activity":       true,
			"high_transaction_volume": true,
			"frequent_activity":       true,
		},
		Profile: model.Attrs{
			"estimated_revenue":   500000.0,
			"potential_products":  []string{"credit_line", "payroll"},
			"credit_score":        750.0,
			"payment_history":     "good",
			"financial_stability": "high",
		},
	}
}

func TestCombine_DefaultWeights(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	set := Combine(richCandidate(now), Weights{}, now)

	assert.Equal(t, 61.0, set.ConversionProbability)
	assert.Equal(t, 1000000.0, set.LTVEstimate)
	assert.Equal(t, 35.0, set.ChurnRisk)
	assert.Equal(t, 100.0, set.EngagementScore)
	assert.Equal(t, 97.5, set.FinancialHealthScore)
	// 61*0.35 + 100*0.30 + 65*0.20 + 100*0.15 = 21.35+30+13+15 = 79.35
	assert.Equal(t, 79.0, set.CombinedScore)
}

func TestCombine_WeightOverride(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// Conversion-only weighting reduces to the conversion probability.
	set := Combine(richCandidate(now), Weights{Conversion: 1}, now)
	assert.Equal(t, set.ConversionProbability, set.CombinedScore)
}

func TestCombine_ChurnInverted(t *testing.T) {
	now := time.Now()
	risky := &model.Candidate{
		Kind:    model.KindProspect,
		Profile: model.Attrs{"credit_score": 450.0, "financial_stability": "low"},
	}
	safe := &model.Candidate{
		Kind:    model.KindProspect,
		Profile: model.Attrs{"credit_score": 780.0, "financial_stability": "high"},
	}
	churnOnly := Weights{Churn: 1}
	assert.Greater(t, Combine(safe, churnOnly, now).CombinedScore,
		Combine(risky, churnOnly, now).CombinedScore)
}

func TestCombine_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := richCandidate(now)
	first := Combine(c, DefaultWeights(), now)
	second := Combine(c, DefaultWeights(), now)
	assert.Equal(t, first, second)
}

func TestCombine_BoundsHold(t *testing.T) {
	now := time.Now()
	set := Combine(&model.Candidate{}, DefaultWeights(), now)
	assert.GreaterOrEqual(t, set.CombinedScore, 0.0)
	assert.LessOrEqual(t, set.CombinedScore, 100.0)
	assert.GreaterOrEqual(t, set.LTVEstimate, 10000.0)
}

func TestPriority_Thresholds(t *testing.T) {
	assert.Equal(t, 10, Priority(80))
	assert.Equal(t, 10, Priority(95))
	assert.Equal(t, 5, Priority(70))
	assert.Equal(t, 5, Priority(79))
	assert.Equal(t, 0, Priority(69))
	assert.Equal(t, 0, Priority(0))
}
