package scoring

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/model"
)

// ltvCeiling normalizes LTV onto the 0-100 combined scale.
const ltvCeiling = 1000000

// Weights control how the four component metrics aggregate into the
// combined score. They need not sum to 1; the default set does.
type Weights struct {
	Conversion float64 `yaml:"conversion" mapstructure:"conversion"`
	LTV        float64 `yaml:"ltv" mapstructure:"ltv"`
	Churn      float64 `yaml:"churn" mapstructure:"churn"`
	Engagement float64 `yaml:"engagement" mapstructure:"engagement"`
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{Conversion: 0.35, LTV: 0.30, Churn: 0.20, Engagement: 0.15}
}

// zero reports whether no weight is set at all.
func (w Weights) zero() bool {
	return w.Conversion == 0 && w.LTV == 0 && w.Churn == 0 && w.Engagement == 0
}

// Combine computes every metric for the candidate and aggregates them into
// a combined score. LTV enters normalized to 0-100; churn enters inverted
// so lower risk raises the result. The returned set is complete; callers
// persist it as a single write.
func Combine(c *model.Candidate, w Weights, now time.Time) model.ScoreSet {
	if w.zero() {
		w = DefaultWeights()
	}

	set := model.ScoreSet{
		ConversionProbability: ConversionProbability(c),
		LTVEstimate:           EstimateLTV(c),
		ChurnRisk:             ChurnRisk(c),
		EngagementScore:       EngagementScore(c, now),
		FinancialHealthScore:  FinancialHealthScore(c),
	}

	ltvScore := math.Min(set.LTVEstimate/ltvCeiling*100, 100)

	combined := set.ConversionProbability*w.Conversion +
		ltvScore*w.LTV +
		(100-set.ChurnRisk)*w.Churn +
		set.EngagementScore*w.Engagement

	set.CombinedScore = clamp(math.Round(combined), 0, 100)

	zap.L().Debug("scoring: combined",
		zap.String("candidate", c.ID),
		zap.Float64("conversion", set.ConversionProbability),
		zap.Float64("ltv", set.LTVEstimate),
		zap.Float64("churn", set.ChurnRisk),
		zap.Float64("engagement", set.EngagementScore),
		zap.Float64("combined", set.CombinedScore),
	)

	return set
}

// Priority derives the 0-10 work-queue priority from a combined score,
// using the qualification thresholds (high priority at 80, qualified at 70).
func Priority(combined float64) int {
	switch {
	case combined >= 80:
		return 10
	case combined >= 70:
		return 5
	default:
		return 0
	}
}
