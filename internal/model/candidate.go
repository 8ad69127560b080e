package model

import (
	"time"
)

// Kind identifies which qualification pipeline a candidate belongs to.
type Kind string

const (
	// KindProspect is a direct CNPJ business prospect.
	KindProspect Kind = "prospect"
	// KindCPFClient is an individual client with conversion potential
	// into a business relationship.
	KindCPFClient Kind = "cpf_client"
	// KindUnbanked is an already-known company without a banking
	// relationship.
	KindUnbanked Kind = "unbanked_company"
	// KindClient is the conversion target collection. Clients never
	// enter the qualification workflow themselves.
	KindClient Kind = "client"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindProspect, KindCPFClient, KindUnbanked, KindClient:
		return true
	}
	return false
}

// Qualifiable reports whether candidates of this kind move through the
// qualification state machine.
func (k Kind) Qualifiable() bool {
	return k == KindProspect || k == KindCPFClient || k == KindUnbanked
}

// Status is a candidate's position in the qualification workflow.
type Status string

const (
	// StatusIdentified is the entry state for cpf_client and
	// unbanked_company pipelines.
	StatusIdentified Status = "identified"
	// StatusPending is the entry state for the prospect pipeline.
	// Equivalent to identified for transition purposes.
	StatusPending   Status = "pending"
	StatusContacted Status = "contacted"
	StatusConverted Status = "converted"
	StatusRejected  Status = "rejected"
)

// Initial reports whether s is an entry state.
func (s Status) Initial() bool {
	return s == StatusIdentified || s == StatusPending
}

// Terminal reports whether s ends the workflow for this candidate.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusRejected
}

// InitialStatus returns the entry state used by the given pipeline.
func InitialStatus(k Kind) Status {
	if k == KindProspect {
		return StatusPending
	}
	return StatusIdentified
}

// Address holds contact address fields. All fields are optional.
type Address struct {
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// BehaviorData holds observed behavioral attributes. Zero values mean
// "unknown" and contribute neutrally to every calculator.
type BehaviorData struct {
	TransactionVolume       float64    `json:"transaction_volume,omitempty"`
	TransactionFrequency    float64    `json:"frequency,omitempty"`
	AverageTransactionValue float64    `json:"average_transaction_value,omitempty"`
	InteractionFrequency    float64    `json:"interaction_frequency,omitempty"`
	Channels                []string   `json:"channels,omitempty"`
	LastInteraction         *time.Time `json:"last_interaction,omitempty"`
	ServiceUsageFrequency   float64    `json:"service_usage_frequency,omitempty"`
}

// ScoreSet holds every engine-derived metric for a candidate. The combiner
// always produces and persists the full set; partial writes are not allowed.
type ScoreSet struct {
	ConversionProbability float64 `json:"conversion_probability"`
	LTVEstimate           float64 `json:"ltv_estimate"`
	ChurnRisk             float64 `json:"churn_risk"`
	EngagementScore       float64 `json:"engagement_score"`
	FinancialHealthScore  float64 `json:"financial_health_score"`
	CombinedScore         float64 `json:"combined_score"`
}

// Candidate is a record under qualification in one of the three pipelines,
// or a converted client record.
type Candidate struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// TaxID is the candidate's own identifier, CPF or CNPJ form.
	TaxID string `json:"tax_id"`
	// BusinessTaxID is an optional linked CNPJ for individual candidates.
	BusinessTaxID string `json:"business_tax_id,omitempty"`

	Name    string   `json:"name"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`

	Behavior BehaviorData `json:"behavior_data"`

	// MarketSignals is an open key->value map of qualitative indicators
	// (e.g. "business_activity", "industry_trend"). Calculators read a
	// known subset and tolerate missing or extra keys.
	MarketSignals Attrs `json:"market_signals,omitempty"`

	// Profile is the consumption/credit profile map (credit_score,
	// payment_history, financial_stability, estimated_revenue,
	// potential_products, similar_clients_ltv_multiplier).
	Profile Attrs `json:"consumption_profile,omitempty"`

	// Score is the current headline score (0-100), kept equal to the
	// combined score after each recalculation.
	Score    float64  `json:"score"`
	Scores   ScoreSet `json:"scores"`
	Priority int      `json:"priority"`

	Status Status `json:"status"`
	Notes  string `json:"notes,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at,omitempty"`
}

// HasBusinessID reports whether a business identifier is known for the
// candidate: either an explicit linked CNPJ, or the candidate's own tax id
// when the pipeline is business-keyed.
func (c *Candidate) HasBusinessID() bool {
	if c.BusinessTaxID != "" {
		return true
	}
	return (c.Kind == KindProspect || c.Kind == KindUnbanked || c.Kind == KindClient) && c.TaxID != ""
}

// CandidateFilter narrows candidate listings.
type CandidateFilter struct {
	Status      Status  `json:"status,omitempty"`
	MinScore    float64 `json:"min_score,omitempty"`
	MinPriority int     `json:"min_priority,omitempty"`
	Limit       int     `json:"limit,omitempty"`
	Offset      int     `json:"offset,omitempty"`
}
