package model

import (
	"encoding/json"
	"strconv"
)

// Attrs is an open string-keyed attribute bag backing market signals and
// consumption profiles. Lookups return a documented neutral default when a
// key is absent or of an unexpected type, so calculators never fail on
// partial data.
type Attrs map[string]any

// Bool returns the key as a bool. Absent keys and non-boolean values
// return false.
func (a Attrs) Bool(key string) bool {
	if a == nil {
		return false
	}
	v, ok := a[key].(bool)
	return ok && v
}

// Str returns the key as a string, or "" when absent.
func (a Attrs) Str(key string) string {
	if a == nil {
		return ""
	}
	v, _ := a[key].(string)
	return v
}

// Float returns the key as a float64, or def when absent or unparseable.
// JSON numbers, Go integer types, and numeric strings are all accepted
// since enrichment sources deliver values in any of those shapes.
func (a Attrs) Float(key string, def float64) float64 {
	if a == nil {
		return def
	}
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Has reports whether the key is present at all.
func (a Attrs) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// StrList returns the key as a list of strings. Both []string and
// []any-of-strings (the shape JSON decoding produces) are accepted.
func (a Attrs) StrList(key string) []string {
	if a == nil {
		return nil
	}
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy so enrichment can merge updates without
// mutating the original bag.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
