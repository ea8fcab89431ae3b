package scoring

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dotcommander/qloop/internal/types"
)

// Anti-gaming caps. An artifact cannot claim victory through assertion
// alone: declared success without execution evidence caps correctness,
// and a plan with no accompanying work caps completeness.
const (
	unverifiedSuccessCap = 40.0
	planOnlyCap          = 25.0
)

// securityPattern pairs a dangerous-code pattern with its penalty.
type securityPattern struct {
	re      *regexp.Regexp
	issue   string
	penalty float64
}

var securityPatterns = []securityPattern{
	{regexp.MustCompile(`(?i)eval\(`), "Use of eval() is dangerous", 20},
	{regexp.MustCompile(`(?i)exec\(`), "Use of exec() is dangerous", 20},
	{regexp.MustCompile(`(?i)pickle\.loads`), "Unsafe deserialization", 15},
	{regexp.MustCompile(`(?i)os\.system`), "Direct system calls", 15},
	{regexp.MustCompile(`(?i)password\s*=\s*["']`), "Hardcoded password", 25},
}

// builtinEvaluators returns the fixed dimension evaluator table, built
// once at scorer construction. Order is stable so assessments are
// reproducible.
func builtinEvaluators() []struct {
	Dim Dimension
	Fn  EvaluatorFunc
} {
	return []struct {
		Dim Dimension
		Fn  EvaluatorFunc
	}{
		{DimCorrectness, evaluateCorrectness},
		{DimCompleteness, evaluateCompleteness},
		{DimMaintainability, evaluateMaintainability},
		{DimSecurity, evaluateSecurity},
		{DimPerformance, evaluatePerformance},
		{DimScalability, evaluateScalability},
		{DimTestability, evaluateTestability},
		{DimUsability, evaluateUsability},
	}
}

func evaluateCorrectness(artifact types.Artifact, ctx types.Context) Metric {
	score := 70.0
	var issues, suggestions []string

	declaredSuccess := false
	if artifact != nil {
		if errs := types.GetList(artifact, "errors"); len(errs) > 0 {
			score -= 30
			issues = append(issues, "Errors present in output")
			suggestions = append(suggestions, "Fix errors before proceeding")
		}
		if !types.GetBool(artifact, "success", true) {
			score -= 20
			issues = append(issues, "Operation not marked as successful")
		} else {
			declaredSuccess = true
		}
	}

	if tr := types.GetMap(ctx, "test_results"); tr != nil {
		if rate, ok := types.GetFloat(tr, "pass_rate"); ok {
			score = rate * 100
		}
	}

	if declaredSuccess && len(extractExecutionEvidence(artifact, ctx)) == 0 {
		if score > unverifiedSuccessCap {
			score = unverifiedSuccessCap
		}
		issues = append(issues, "Declared success without execution evidence")
		suggestions = append(suggestions, "Share applied diffs, commands, or test logs before claiming success")
	}

	return Metric{
		Dimension:   DimCorrectness,
		Score:       types.Clamp(score),
		Details:     "Correctness based on errors and test results",
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func evaluateCompleteness(artifact types.Artifact, ctx types.Context) Metric {
	score := 80.0
	var issues, suggestions []string

	if reqs := types.GetList(ctx, "requirements"); len(reqs) > 0 {
		met := 0
		for _, r := range reqs {
			req, ok := r.(string)
			if !ok {
				continue
			}
			if requirementMet(artifact, req) {
				met++
			} else {
				issues = append(issues, "Missing requirement: "+req)
				suggestions = append(suggestions, "Implement "+req)
			}
		}
		score = float64(met) / float64(len(reqs)) * 100
	}

	text := types.Text(artifact)
	if strings.Contains(text, "TODO") || strings.Contains(text, "FIXME") {
		score -= 20
		issues = append(issues, "Contains TODO/FIXME comments")
		suggestions = append(suggestions, "Complete all TODO items")
	}

	evidence := extractExecutionEvidence(artifact, ctx)
	planOnly := false
	if artifact != nil {
		if types.GetString(artifact, "status") == "plan-only" {
			planOnly = true
		}
		if !planOnly {
			_, hasPlan := artifact["planned_actions"]
			if !hasPlan {
				_, hasPlan = artifact["plan"]
			}
			if hasPlan && len(evidence) == 0 {
				planOnly = true
			}
		}
	}

	if planOnly && len(evidence) == 0 {
		if score > planOnlyCap {
			score = planOnlyCap
		}
		issues = append(issues, "Only a plan was produced; no concrete work verified")
		suggestions = append(suggestions, "Execute the plan and capture diffs/tests before re-evaluating")
	}

	return Metric{
		Dimension:   DimCompleteness,
		Score:       types.Clamp(score),
		Details:     "Completeness of implementation",
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func evaluateMaintainability(artifact types.Artifact, ctx types.Context) Metric {
	score := 75.0
	var issues, suggestions []string

	if code := types.GetString(artifact, "code"); code != "" {
		lines := strings.Split(code, "\n")

		long := false
		for _, fn := range extractFunctions(code) {
			if len(strings.Split(fn, "\n")) > 50 {
				long = true
				break
			}
		}
		if long {
			score -= 15
			issues = append(issues, "Functions too long")
			suggestions = append(suggestions, "Break down long functions")
		}

		if len(lines) > 500 {
			score -= 10
			issues = append(issues, "File too long")
			suggestions = append(suggestions, "Split into multiple modules")
		}
	}

	if hasDuplication(types.Text(artifact)) {
		score -= 15
		issues = append(issues, "Code duplication detected")
		suggestions = append(suggestions, "Extract common functionality")
	}

	return Metric{
		Dimension:   DimMaintainability,
		Score:       types.Clamp(score),
		Details:     "Code maintainability",
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func evaluateSecurity(artifact types.Artifact, ctx types.Context) Metric {
	score := 80.0
	var issues, suggestions []string

	text := types.Text(artifact)
	for _, p := range securityPatterns {
		if p.re.MatchString(text) {
			score -= p.penalty
			issues = append(issues, p.issue)
			suggestions = append(suggestions, "Fix security issue: "+p.issue)
		}
	}

	if strings.Contains(text, "user_input") && !strings.Contains(text, "validate") {
		score -= 10
		issues = append(issues, "No input validation")
		suggestions = append(suggestions, "Add input validation")
	}

	return Metric{
		Dimension:   DimSecurity,
		Score:       types.Clamp(score),
		Details:     "Security assessment",
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func evaluatePerformance(artifact types.Artifact, ctx types.Context) Metric {
	score := 70.0
	var issues, suggestions []string

	if metrics := types.GetMap(ctx, "metrics"); metrics != nil {
		if rt, ok := types.GetFloat(metrics, "response_time"); ok && rt > 1000 {
			score -= 20
			issues = append(issues, "High response time")
			suggestions = append(suggestions, "Optimize response time")
		}
		if mem, ok := types.GetFloat(metrics, "memory_mb"); ok && mem > 500 {
			score -= 15
			issues = append(issues, "High memory usage")
			suggestions = append(suggestions, "Reduce memory footprint")
		}
	}

	return Metric{
		Dimension:   DimPerformance,
		Score:       types.Clamp(score),
		Details:     "Performance metrics",
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func evaluateScalability(artifact types.Artifact, ctx types.Context) Metric {
	score := 70.0
	var issues, suggestions []string

	text := strings.ToLower(types.Text(artifact))

	if sc := types.GetMap(ctx, "scalability"); sc != nil {
		load, loadOK := types.GetFloat(sc, "projected_load")
		capacity, capOK := types.GetFloat(sc, "current_capacity")
		if loadOK && capOK {
			if capacity < load {
				score -= 20
				issues = append(issues, "Projected load exceeds current capacity")
				suggestions = append(suggestions, "Increase capacity or introduce load balancing")
			} else {
				score += 5
			}
		}

		if bottlenecks := types.GetList(sc, "bottlenecks"); len(bottlenecks) > 0 {
			penalty := 10.0 * float64(len(bottlenecks))
			if penalty > 30 {
				penalty = 30
			}
			score -= penalty
			issues = append(issues, "Scalability bottlenecks identified")
			suggestions = append(suggestions, "Address bottlenecks: "+joinAny(bottlenecks))
		}

		if strategies := types.GetList(sc, "strategies"); len(strategies) > 0 {
			boost := 3.0 * float64(len(strategies))
			if boost > 10 {
				boost = 10
			}
			score += boost
		}
	} else {
		if strings.Contains(text, "single server") || strings.Contains(text, "monolith") {
			score -= 10
			issues = append(issues, "Potential single server scaling limitation")
			suggestions = append(suggestions, "Consider horizontal scaling or modularization")
		}
		for _, keyword := range []string{"autoscale", "queue", "shard", "partition"} {
			if strings.Contains(text, keyword) {
				score += 5
				break
			}
		}
	}

	return Metric{
		Dimension:   DimScalability,
		Score:       types.Clamp(score),
		Details:     "Scalability assessment from architecture and context",
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func evaluateTestability(artifact types.Artifact, ctx types.Context) Metric {
	score := 65.0
	var issues, suggestions []string

	if tr := types.GetMap(ctx, "test_results"); tr != nil {
		if rate, ok := types.GetFloat(tr, "pass_rate"); ok {
			if rate*100 > score {
				score = rate * 100
			}
		}
		if collected, ok := types.GetFloat(tr, "tests_collected"); ok && collected == 0 {
			score -= 25
			issues = append(issues, "No automated tests were discovered")
			suggestions = append(suggestions, "Add unit and integration tests for critical paths")
		}
		if cov, ok := types.GetFloat(tr, "coverage"); ok && cov < 0.6 {
			score -= 15
			issues = append(issues, "Test coverage below 60%")
			suggestions = append(suggestions, "Increase coverage for high-risk modules")
		}
	} else if strings.Contains(strings.ToLower(types.Text(artifact)), "todo tests") {
		score -= 20
		issues = append(issues, "Tests marked as TODO")
		suggestions = append(suggestions, "Implement pending tests before shipping")
	}

	return Metric{
		Dimension:   DimTestability,
		Score:       types.Clamp(score),
		Details:     "Testability based on automated test signals",
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func evaluateUsability(artifact types.Artifact, ctx types.Context) Metric {
	score := 75.0
	var issues, suggestions []string

	feedback := types.GetMap(ctx, "usability_feedback")
	if feedback == nil {
		feedback = types.GetMap(ctx, "user_feedback")
	}
	if feedback != nil {
		if sat, ok := types.GetFloat(feedback, "satisfaction"); ok {
			score = sat
		}
		for _, issue := range types.GetList(feedback, "issues") {
			if s, ok := issue.(string); ok {
				issues = append(issues, s)
			}
		}
		for _, sug := range types.GetList(feedback, "suggestions") {
			if s, ok := sug.(string); ok {
				suggestions = append(suggestions, s)
			}
		}
	}

	if acc := types.GetList(ctx, "accessibility_issues"); len(acc) > 0 {
		penalty := 5.0 * float64(len(acc))
		if penalty > 25 {
			penalty = 25
		}
		score -= penalty
		issues = append(issues, "Accessibility issues detected")
		suggestions = append(suggestions, "Resolve accessibility gaps: "+joinAny(acc))
	}

	text := strings.ToLower(types.Text(artifact))
	if strings.Contains(text, "poor ux") || strings.Contains(text, "hard to use") {
		score -= 10
		issues = append(issues, "Negative usability feedback noted")
		suggestions = append(suggestions, "Iterate on UX with user testing")
	}

	return Metric{
		Dimension:   DimUsability,
		Score:       types.Clamp(score),
		Details:     "Usability and accessibility assessment",
		Issues:      issues,
		Suggestions: suggestions,
	}
}

// requirementMet reports whether every keyword of the requirement appears
// in the artifact text.
func requirementMet(artifact types.Artifact, requirement string) bool {
	text := strings.ToLower(types.Text(artifact))
	for _, keyword := range strings.Fields(strings.ToLower(requirement)) {
		if !strings.Contains(text, keyword) {
			return false
		}
	}
	return true
}

// extractFunctions slices code into function bodies. Recognizes Python,
// Go, and JavaScript style declarations; good enough for length checks.
func extractFunctions(code string) []string {
	var functions []string
	var current []string

	isDecl := func(line string) bool {
		trimmed := strings.TrimSpace(line)
		return strings.HasPrefix(trimmed, "def ") ||
			strings.HasPrefix(trimmed, "func ") ||
			strings.HasPrefix(trimmed, "function ")
	}

	inFunction := false
	for _, line := range strings.Split(code, "\n") {
		switch {
		case isDecl(line):
			if len(current) > 0 {
				functions = append(functions, strings.Join(current, "\n"))
			}
			current = []string{line}
			inFunction = true
		case inFunction:
			if line != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") &&
				!strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "}") {
				functions = append(functions, strings.Join(current, "\n"))
				current = nil
				inFunction = false
			} else {
				current = append(current, line)
			}
		}
	}
	if len(current) > 0 {
		functions = append(functions, strings.Join(current, "\n"))
	}
	return functions
}

// hasDuplication reports whether any substantial line repeats more than
// twice.
func hasDuplication(text string) bool {
	counts := make(map[string]int)
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if len(stripped) > 20 {
			counts[stripped]++
			if counts[stripped] > 2 {
				return true
			}
		}
	}
	return false
}

func joinAny(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	return strings.Join(parts, ", ")
}
