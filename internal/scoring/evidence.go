package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dotcommander/qloop/internal/types"
)

// Artifact keys scanned for execution evidence, in order.
var artifactEvidenceKeys = []string{
	"actions_taken",
	"executed_operations",
	"applied_changes",
	"files_modified",
	"commands_run",
	"diff_summary",
	"evidence",
}

// Context keys scanned for execution evidence, in order.
var contextEvidenceKeys = []string{
	"evidence",
	"execution",
	"diff_summary",
	"applied_changes",
}

// extractExecutionEvidence collects every marker that real work was
// performed: executed operations, applied diffs, modified files, test
// outcomes. Duplicates are removed while preserving order. An empty
// result means the artifact's claims are unsupported.
func extractExecutionEvidence(artifact types.Artifact, ctx types.Context) []string {
	var evidence []string

	for _, key := range artifactEvidenceKeys {
		if v, ok := artifact[key]; ok {
			evidence = append(evidence, collectEvidence(v, key)...)
		}
	}

	for _, key := range contextEvidenceKeys {
		if v, ok := ctx[key]; ok {
			evidence = append(evidence, collectEvidence(v, key)...)
		}
	}

	if tr := types.GetMap(ctx, "test_results"); tr != nil {
		if types.GetBool(tr, "passed", false) {
			evidence = append(evidence, "tests: suite passed")
		}
		if rate, ok := types.GetFloat(tr, "pass_rate"); ok && rate > 0 {
			evidence = append(evidence, fmt.Sprintf("tests: pass rate %.0f%%", rate*100))
		}
	}

	return dedupe(evidence)
}

// collectEvidence flattens a value into evidence strings, prefixing each
// with its key path.
func collectEvidence(v any, prefix string) []string {
	label := ""
	if prefix != "" {
		label = prefix + ": "
	}

	switch val := v.(type) {
	case []any:
		var out []string
		for _, item := range val {
			if item == nil {
				continue
			}
			s := types.Text(item)
			if strings.TrimSpace(s) != "" {
				out = append(out, label+s)
			}
		}
		return out
	case map[string]any:
		var out []string
		for _, key := range sortedKeys(val) {
			sub := prefix
			if sub != "" {
				sub = prefix + "." + key
			} else {
				sub = key
			}
			out = append(out, collectEvidence(val[key], sub)...)
		}
		return out
	case string:
		if strings.TrimSpace(val) != "" {
			return []string{label + val}
		}
	case int, int64, float64:
		return []string{label + types.Text(val)}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
