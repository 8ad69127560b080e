// Package scoring implements the metric calculators and score combiner.
// All functions are pure and read-only over the candidate; missing
// attributes contribute neutral or zero values instead of failing.
package scoring

import (
	"math"
	"time"

	"github.com/atlasbanco/prospect-engine/internal/model"
)

// defaultCreditScore stands in when the profile carries no credit score.
// Only churn and financial health use it; the conversion external-data
// factor adds nothing for a missing score.
const defaultCreditScore = 600

// ConversionProbability estimates how likely the candidate is to convert
// into a business relationship, 0-100. Four weighted factors: current
// score (0.30), transaction patterns (0.25), business-activity indicators
// (0.25), external data (0.20). Each factor is capped before weighting.
func ConversionProbability(c *model.Candidate) float64 {
	probability := c.Score * 0.30

	probability += transactionScore(c.Behavior) * 0.25
	probability += businessActivityScore(c) * 0.25
	probability += externalDataScore(c.Profile) * 0.20

	return clamp(math.Round(probability), 0, 100)
}

// transactionScore bands volume and frequency, capped at 50.
func transactionScore(b model.BehaviorData) float64 {
	var volume float64
	switch {
	case b.TransactionVolume > 10000:
		volume = 30
	case b.TransactionVolume > 5000:
		volume = 20
	default:
		volume = 10
	}

	var freq float64
	switch {
	case b.TransactionFrequency > 20:
		freq = 20
	case b.TransactionFrequency > 10:
		freq = 15
	default:
		freq = 10
	}

	return math.Min(volume+freq, 50)
}

// businessActivityScore rewards a known business identifier and the
// qualitative activity signals, capped at 50.
func businessActivityScore(c *model.Candidate) float64 {
	var score float64
	if c.HasBusinessID() {
		score += 20
	}
	if c.MarketSignals.Bool("business_activity") {
		score += 15
	}
	if c.MarketSignals.Bool("high_transaction_volume") {
		score += 10
	}
	if c.MarketSignals.Bool("frequent_activity") {
		score += 5
	}
	return math.Min(score, 50)
}

// externalDataScore bands bureau data, capped at 50. Absent fields add
// nothing.
func externalDataScore(p model.Attrs) float64 {
	var score float64
	if p.Has("credit_score") {
		credit := p.Float("credit_score", 0)
		switch {
		case credit > 700:
			score += 30
		case credit > 600:
			score += 20
		default:
			score += 10
		}
	}
	if p.Has("payment_history") {
		switch p.Str("payment_history") {
		case "good":
			score += 20
		case "fair":
			score += 10
		}
	}
	return math.Min(score, 50)
}

// EstimateLTV projects lifetime value in currency units, clamped to
// [10,000, 1,000,000]. Base is three years of estimated annual revenue,
// falling back to a transaction-volume derivation, then a flat 50,000
// baseline. Potential products and the peer-cohort multiplier scale the
// base.
func EstimateLTV(c *model.Candidate) float64 {
	var ltv float64

	if revenue := c.Profile.Float("estimated_revenue", 0); revenue > 0 {
		ltv = revenue * 3
	} else if c.Behavior.TransactionVolume > 0 {
		monthly := c.Behavior.TransactionVolume / 12
		ltv = monthly * 12 * 3
	} else {
		ltv = 50000
	}

	products := c.Profile.StrList("potential_products")
	ltv *= 1 + float64(len(products))*0.1

	ltv *= c.Profile.Float("similar_clients_ltv_multiplier", 1)

	return math.Round(clamp(ltv, 10000, 1000000))
}

// ChurnRisk estimates attrition risk 0-100. A running value starts at the
// 50 midpoint and is blended, not replaced, with four banded factors in a
// fixed order: financial stability (0.7/0.3), service usage (0.75/0.25),
// market indicators (0.75/0.25), credit band (0.8/0.2). Each step feeds
// the next, which dampens later factors; the original system behaves this
// way and downstream thresholds were tuned against it.
func ChurnRisk(c *model.Candidate) float64 {
	risk := 50.0

	stability := 50.0
	switch c.Profile.Str("financial_stability") {
	case "high":
		stability = 20
	case "medium":
		stability = 40
	case "low":
		stability = 70
	}
	risk = risk*0.7 + stability*0.3

	usage := 50.0
	if f := c.Behavior.ServiceUsageFrequency; f > 0 {
		switch {
		case f > 20:
			usage = 20
		case f > 10:
			usage = 40
		default:
			usage = 60
		}
	}
	risk = risk*0.75 + usage*0.25

	market := 50.0
	if c.MarketSignals.Bool("market_volatility") {
		market += 20
	}
	if c.MarketSignals.Bool("competitor_activity") {
		market += 15
	}
	if c.MarketSignals.Str("industry_trend") == "declining" {
		market += 25
	}
	risk = risk*0.75 + market*0.25

	credit := c.Profile.Float("credit_score", defaultCreditScore)
	creditRisk := 50.0
	switch {
	case credit < 500:
		creditRisk = 80
	case credit < 600:
		creditRisk = 60
	case credit < 700:
		creditRisk = 40
	default:
		creditRisk = 20
	}
	risk = risk*0.8 + creditRisk*0.2

	return clamp(math.Round(risk), 0, 100)
}

// EngagementScore measures interaction intensity 0-100: interaction
// frequency (up to 40), channel diversity (up to 30), and a recency bonus
// (up to 30).
func EngagementScore(c *model.Candidate, now time.Time) float64 {
	score := math.Min(c.Behavior.InteractionFrequency*2, 40)
	score += math.Min(float64(len(c.Behavior.Channels))*10, 30)

	if last := c.Behavior.LastInteraction; last != nil {
		days := now.Sub(*last).Hours() / 24
		switch {
		case days < 7:
			score += 30
		case days < 30:
			score += 20
		case days < 90:
			score += 10
		}
	}

	return math.Min(score, 100)
}

// FinancialHealthScore summarizes the credit profile 0-100: a 50 baseline
// blended 50/50 with credit/10, then payment-history and stability
// adjustments. Unknown history or stability count as negative adjustments.
func FinancialHealthScore(c *model.Candidate) float64 {
	credit := c.Profile.Float("credit_score", defaultCreditScore)
	score := 50*0.5 + (credit/10)*0.5

	switch c.Profile.Str("payment_history") {
	case "good":
		score += 20
	case "fair":
		score += 10
	default:
		score -= 10
	}

	switch c.Profile.Str("financial_stability") {
	case "high":
		score += 15
	case "medium":
		score += 5
	default:
		score -= 15
	}

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
