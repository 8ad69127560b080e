package enrich

import (
	"time"

	"github.com/atlasbanco/prospect-engine/internal/model"
)

// marketSignalKeys are the qualitative indicators the calculators read from
// the market-signals bag.
var marketSignalKeys = map[string]bool{
	"business_activity":       true,
	"high_transaction_volume": true,
	"frequent_activity":       true,
	"market_volatility":       true,
	"competitor_activity":     true,
	"industry_trend":          true,
}

// Apply merges enriched attributes into the candidate. Typed contact and
// behavior fields are set directly; known market signals land in the
// signals bag; everything else goes to the consumption profile. Returns
// the number of attributes applied.
func Apply(c *model.Candidate, attrs map[string]any) int {
	applied := 0
	for key, val := range attrs {
		if handled, ok := setCandidateField(c, key, val); handled {
			if ok {
				applied++
			}
			continue
		}
		if marketSignalKeys[key] {
			if c.MarketSignals == nil {
				c.MarketSignals = model.Attrs{}
			}
			c.MarketSignals[key] = val
			applied++
			continue
		}
		if c.Profile == nil {
			c.Profile = model.Attrs{}
		}
		c.Profile[key] = val
		applied++
	}
	return applied
}

// setCandidateField handles the typed candidate fields. handled reports
// whether the key names a typed field at all; ok reports whether the value
// was usable. A rejected value (empty string, unparseable number) leaves
// the field untouched and must not fall through to the open bags.
func setCandidateField(c *model.Candidate, key string, val any) (handled, ok bool) {
	switch key {
	case "name":
		return true, setStr(&c.Name, val)
	case "email", "contact_email":
		return true, setStr(&c.Email, val)
	case "phone", "contact_phone":
		return true, setStr(&c.Phone, val)
	case "business_tax_id":
		return true, setStr(&c.BusinessTaxID, val)
	case "transaction_volume":
		return true, setFloat(&c.Behavior.TransactionVolume, val)
	case "frequency", "transaction_frequency":
		return true, setFloat(&c.Behavior.TransactionFrequency, val)
	case "average_transaction_value":
		return true, setFloat(&c.Behavior.AverageTransactionValue, val)
	case "interaction_frequency":
		return true, setFloat(&c.Behavior.InteractionFrequency, val)
	case "service_usage_frequency":
		return true, setFloat(&c.Behavior.ServiceUsageFrequency, val)
	case "channels":
		bag := model.Attrs{key: val}
		if list := bag.StrList(key); len(list) > 0 {
			c.Behavior.Channels = list
			return true, true
		}
		return true, false
	case "last_interaction":
		if t, ok := parseAttrTime(val); ok {
			c.Behavior.LastInteraction = &t
			return true, true
		}
		return true, false
	}
	return false, false
}

func setStr(dst *string, val any) bool {
	s, ok := val.(string)
	if !ok || s == "" {
		return false
	}
	*dst = s
	return true
}

func setFloat(dst *float64, val any) bool {
	f := model.Attrs{"v": val}.Float("v", -1)
	if f < 0 {
		return false
	}
	*dst = f
	return true
}

func parseAttrTime(val any) (time.Time, bool) {
	switch v := val.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
