// Package types provides shared types used across the qloop codebase.
// This package is at the bottom of the dependency graph and should not import
// any other internal packages to avoid circular dependencies.
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Artifact is the unit of work under evaluation. Artifacts arrive as
// decoded JSON/YAML documents, so the representation is a generic map;
// accessor helpers degrade safely on missing or mistyped fields.
type Artifact map[string]any

// Context carries ancillary evaluation data: tool reports, requirements,
// expectation flags, evidence snapshots. Absent sub-objects degrade silently.
type Context map[string]any

// Quality band constants.
const (
	BandProductionReady = "production_ready"
	BandNeedsAttention  = "needs_attention"
	BandIterate         = "iterate"
)

// Text renders a value as a stable string for keyword scanning. Maps are
// rendered with sorted keys so repeated calls over the same value produce
// identical text, and string values are left unescaped so pattern scans
// see them verbatim.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+Text(val[k]))
		}
		return strings.Join(parts, "\n")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, Text(item))
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// GetMap returns a nested map value, or nil when absent or mistyped.
func GetMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	return nil
}

// GetString returns a string field, or "" when absent or mistyped.
func GetString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// GetBool returns a boolean field. Missing or mistyped fields return def.
func GetBool(m map[string]any, key string, def bool) bool {
	if m == nil {
		return def
	}
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

// GetFloat returns a numeric field as float64. YAML and JSON decoders
// produce a mix of int, int64, and float64, so all are accepted.
// Returns (0, false) when absent or not numeric.
func GetFloat(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	return AsFloat(m[key])
}

// GetInt returns a numeric field truncated to int, or 0 when absent.
func GetInt(m map[string]any, key string) int {
	f, ok := GetFloat(m, key)
	if !ok {
		return 0
	}
	return int(f)
}

// GetList returns a slice field, or nil when absent or mistyped.
func GetList(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	if l, ok := m[key].([]any); ok {
		return l
	}
	return nil
}

// AsFloat coerces a decoded scalar to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Clamp bounds a score to the [0,100] range.
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
