package scoring

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/qloop/internal/signal"
	"github.com/dotcommander/qloop/internal/types"
)

// Generic improvement hints appended when the overall score is low.
const (
	hintMajorRefactor  = "Major refactoring needed"
	hintCriticalIssues = "Address critical issues first"
)

// Expectation-failure markers prepended to the improvement list when the
// caller opted in via expects_* context flags.
const (
	markMissingFileChanges  = "MISSING_FILE_CHANGES: no files were created or modified"
	markNoTestsRun          = "NO_TESTS_RUN: expected test execution but none was recorded"
	markNoExecutionEvidence = "NO_EXECUTION_EVIDENCE: no proof of executed work was found"
)

// Scorer evaluates artifacts across quality dimensions and blends the
// results into one overall score. The assessment history is the only
// state shared across calls; it is append-only and bounded.
type Scorer struct {
	thresholds Thresholds
	dimWeights map[Dimension]float64
	components ComponentWeights
	evaluators []struct {
		Dim Dimension
		Fn  EvaluatorFunc
	}
	primary PrimaryEvaluator
	custom  []EvaluatorFunc
	history *History
	logf    func(format string, args ...any)
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithThreshold overrides the production-ready cut point.
func WithThreshold(threshold float64) Option {
	return func(s *Scorer) {
		s.thresholds = s.thresholds.WithOverride(threshold)
	}
}

// WithThresholds replaces the full threshold set.
func WithThresholds(t Thresholds) Option {
	return func(s *Scorer) { s.thresholds = t }
}

// WithDimensionWeights overrides individual dimension weights. Unknown
// dimensions are ignored.
func WithDimensionWeights(weights map[Dimension]float64) Option {
	return func(s *Scorer) {
		for dim, w := range weights {
			if _, ok := s.dimWeights[dim]; ok && w >= 0 {
				s.dimWeights[dim] = w
			}
		}
	}
}

// WithComponentWeights overrides the blender component weights.
func WithComponentWeights(w ComponentWeights) Option {
	return func(s *Scorer) { s.components = w }
}

// WithPrimaryEvaluator installs a primary evaluator strategy that
// replaces the built-in dimension pass when it produces metrics.
func WithPrimaryEvaluator(p PrimaryEvaluator) Option {
	return func(s *Scorer) { s.primary = p }
}

// WithHistoryLimit bounds the assessment history.
func WithHistoryLimit(limit int) Option {
	return func(s *Scorer) { s.history = NewHistory(limit) }
}

// WithLogger routes scorer warnings to a custom printf-style sink.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(s *Scorer) { s.logf = logf }
}

// NewScorer creates a Scorer with the fixed evaluator table and default
// weights and thresholds.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		thresholds: DefaultThresholds(),
		dimWeights: DefaultDimensionWeights(),
		components: DefaultComponentWeights(),
		evaluators: builtinEvaluators(),
		history:    NewHistory(0),
		logf:       log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddCustomEvaluator registers an additional evaluator run after the
// built-in pass. Errors inside it are caught and that evaluator skipped.
func (s *Scorer) AddCustomEvaluator(fn EvaluatorFunc) {
	s.custom = append(s.custom, fn)
}

// Thresholds returns the scorer's threshold set.
func (s *Scorer) Thresholds() Thresholds {
	return s.thresholds
}

// History returns the scorer's assessment history.
func (s *Scorer) History() *History {
	return s.history
}

// Evaluate assesses an artifact across all dimensions.
func (s *Scorer) Evaluate(artifact types.Artifact, ctx types.Context, iteration int) *Assessment {
	return s.EvaluateDimensions(artifact, ctx, nil, nil, iteration)
}

// EvaluateDimensions assesses an artifact across the given dimensions
// (all when nil), with optional per-call weight overrides. It never
// returns an error: malformed input degrades, and evaluator panics are
// caught and logged, skipping only that evaluator.
func (s *Scorer) EvaluateDimensions(artifact types.Artifact, ctx types.Context, dims []Dimension, weights map[Dimension]float64, iteration int) *Assessment {
	metrics, improvements, metadata := s.runEvaluators(artifact, ctx, dims, weights)

	overall, components, applied := blendComponents(metrics, ctx, s.components)

	if metadata == nil {
		metadata = make(map[string]any)
	}
	breakdown := make(map[string]float64, len(components))
	for name, score := range components {
		if score != nil {
			breakdown[name] = *score
		}
	}
	metadata["components"] = breakdown
	metadata["weights"] = applied

	if improvements == nil {
		improvements = s.identifyImprovements(metrics, overall)
	}

	assessment := &Assessment{
		OverallScore:       overall,
		Metrics:            metrics,
		Timestamp:          time.Now(),
		Iteration:          iteration,
		Passed:             overall >= s.thresholds.ProductionReady,
		Threshold:          s.thresholds.ProductionReady,
		Band:               s.thresholds.Classify(overall),
		ImprovementsNeeded: improvements,
		Metadata:           metadata,
	}

	s.history.Append(assessment)
	return assessment
}

// runEvaluators produces the metric list for a call: the primary
// evaluator when it yields metrics, otherwise the built-in table plus any
// custom evaluators.
func (s *Scorer) runEvaluators(artifact types.Artifact, ctx types.Context, dims []Dimension, weights map[Dimension]float64) (metrics []Metric, improvements []string, metadata map[string]any) {
	if s.primary != nil {
		m, imp, meta := s.safePrimary(artifact, ctx)
		if len(m) > 0 {
			for i := range m {
				m[i].Score = types.Clamp(m[i].Score)
			}
			return m, imp, meta
		}
	}

	selected := make(map[Dimension]bool, len(dims))
	for _, d := range dims {
		selected[d] = true
	}

	for _, entry := range s.evaluators {
		if len(dims) > 0 && !selected[entry.Dim] {
			continue
		}
		metric, ok := s.safeEvaluate(entry.Fn, artifact, ctx, string(entry.Dim))
		if !ok {
			continue
		}
		metric.Weight = s.weightFor(metric.Dimension, weights)
		metrics = append(metrics, metric)
	}

	if review := reviewMetric(ctx); review != nil {
		review.Weight = s.weightFor(DimReview, weights)
		metrics = append(metrics, *review)
	}

	for i, fn := range s.custom {
		metric, ok := s.safeEvaluate(fn, artifact, ctx, fmt.Sprintf("custom[%d]", i))
		if !ok {
			continue
		}
		metric.Score = types.Clamp(metric.Score)
		if metric.Weight == 0 {
			metric.Weight = s.weightFor(metric.Dimension, weights)
		}
		metrics = append(metrics, metric)
	}

	return metrics, nil, nil
}

func (s *Scorer) weightFor(dim Dimension, overrides map[Dimension]float64) float64 {
	if w, ok := overrides[dim]; ok && w >= 0 {
		return w
	}
	if w, ok := s.dimWeights[dim]; ok {
		return w
	}
	return 0.1
}

// safeEvaluate runs one evaluator, converting panics into a skip.
func (s *Scorer) safeEvaluate(fn EvaluatorFunc, artifact types.Artifact, ctx types.Context, name string) (metric Metric, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logf("qloop: evaluator %s failed: %v", name, r)
			ok = false
		}
	}()
	return fn(artifact, ctx), true
}

func (s *Scorer) safePrimary(artifact types.Artifact, ctx types.Context) (metrics []Metric, improvements []string, metadata map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			s.logf("qloop: primary evaluator failed: %v", r)
			metrics, improvements, metadata = nil, nil, nil
		}
	}()
	return s.primary.EvaluatePrimary(artifact, ctx)
}

// reviewMetric lifts an external review sub-object from the context into
// a metric for the blender's primary component.
func reviewMetric(ctx types.Context) *Metric {
	review := types.GetMap(ctx, "review")
	if review == nil {
		return nil
	}
	score, ok := types.GetFloat(review, "score")
	if !ok {
		return nil
	}

	m := &Metric{
		Dimension: DimReview,
		Score:     types.Clamp(score),
		Details:   "External review score",
	}
	for _, issue := range types.GetList(review, "issues") {
		if s, ok := issue.(string); ok {
			m.Issues = append(m.Issues, s)
		}
	}
	for _, sug := range types.GetList(review, "suggestions") {
		if s, ok := sug.(string); ok {
			m.Suggestions = append(m.Suggestions, s)
		}
	}
	return m
}

// identifyImprovements derives a ranked improvement list: the top two
// suggestions from each of the three worst dimensions under 70, plus a
// generic hint when the overall score is low.
func (s *Scorer) identifyImprovements(metrics []Metric, overall float64) []string {
	sorted := make([]Metric, len(metrics))
	copy(sorted, metrics)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score < sorted[j].Score
	})

	var improvements []string
	worst := sorted
	if len(worst) > 3 {
		worst = worst[:3]
	}
	for _, metric := range worst {
		if metric.Score >= 70 {
			continue
		}
		suggestions := metric.Suggestions
		if len(suggestions) > 2 {
			suggestions = suggestions[:2]
		}
		for _, suggestion := range suggestions {
			improvements = append(improvements, string(metric.Dimension)+": "+suggestion)
		}
	}

	if overall < 50 {
		improvements = append(improvements, hintMajorRefactor)
	} else if overall < 70 {
		improvements = append(improvements, hintCriticalIssues)
	}

	return improvements
}

// EvaluateWithSignals evaluates, then grounds the score against the
// deterministic signals found in the context. The assessment's overall
// score, pass flag, and band are overwritten with the grounded values.
func (s *Scorer) EvaluateWithSignals(artifact types.Artifact, ctx types.Context, iteration int) *Assessment {
	assessment := s.Evaluate(artifact, ctx, iteration)
	s.ground(assessment, signal.FromContext(ctx), artifact, ctx)
	return assessment
}

// EvaluateExecution evaluates an execution record against its evidence
// snapshot. Signals come from the snapshot when present, falling back to
// context report sub-objects.
func (s *Scorer) EvaluateExecution(record types.Artifact, ctx types.Context, iteration int) *Assessment {
	assessment := s.Evaluate(record, ctx, iteration)

	snapshot := types.GetMap(record, "evidence")
	if snapshot == nil {
		snapshot = types.GetMap(ctx, "evidence")
	}

	sig := signal.FromContext(ctx)
	if snapshot != nil {
		evidenceSig := signal.FromEvidence(snapshot)
		if evidenceSig.TestsTotal > 0 || evidenceSig.Coverage > 0 {
			sig = evidenceSig
		}
	}

	s.ground(assessment, sig, record, ctx)
	return assessment
}

func (s *Scorer) ground(assessment *Assessment, sig signal.Signals, artifact types.Artifact, ctx types.Context) {
	adjusted, adj := sig.Apply(assessment.OverallScore)

	assessment.OverallScore = adjusted
	assessment.Passed = adjusted >= s.thresholds.ProductionReady
	assessment.Band = s.thresholds.Classify(adjusted)
	if assessment.Metadata == nil {
		assessment.Metadata = make(map[string]any)
	}
	assessment.Metadata["signal_adjustment"] = adj

	failures := expectationFailures(artifact, ctx)
	if len(failures) > 0 {
		assessment.Metadata["expectation_failures"] = failures
		assessment.ImprovementsNeeded = append(failures, assessment.ImprovementsNeeded...)
	}
}

// expectationFailures checks the opt-in expects_* flags against the
// evidence snapshot. Opt-in is mandatory: read-only or advisory work must
// never be penalized for lacking file changes.
func expectationFailures(artifact types.Artifact, ctx types.Context) []string {
	snapshot := types.GetMap(artifact, "evidence")
	if snapshot == nil {
		snapshot = types.GetMap(ctx, "evidence")
	}

	var failures []string
	if types.GetBool(ctx, "expects_file_changes", false) &&
		!types.GetBool(snapshot, "has_file_modifications", false) {
		failures = append(failures, markMissingFileChanges)
	}
	if types.GetBool(ctx, "expects_tests", false) &&
		!types.GetBool(snapshot, "tests_run", false) {
		failures = append(failures, markNoTestsRun)
	}
	expectsEvidence := types.GetBool(ctx, "expects_execution_evidence", false) ||
		types.GetBool(ctx, "requires_evidence", false)
	if expectsEvidence &&
		!types.GetBool(snapshot, "has_execution_evidence", false) &&
		len(extractExecutionEvidence(artifact, ctx)) == 0 {
		failures = append(failures, markNoExecutionEvidence)
	}
	return failures
}

// CalculateScore is a simplified synchronous entry for callers that
// already hold component scores. Recognized keys: review (aliases
// correctness and superclaude, which upstream producers emit),
// completeness, test_coverage.
func (s *Scorer) CalculateScore(scores map[string]float64) map[string]any {
	components := make(map[string]*float64)

	for _, key := range []string{ComponentReview, "correctness", "superclaude"} {
		if v, ok := scores[key]; ok {
			v := types.Clamp(v)
			components[ComponentReview] = &v
			break
		}
	}
	if v, ok := scores[ComponentCompleteness]; ok {
		v := types.Clamp(v)
		components[ComponentCompleteness] = &v
	}
	if v, ok := scores[ComponentTestCoverage]; ok {
		v := types.Clamp(v)
		components[ComponentTestCoverage] = &v
	}

	overall, _ := Blend(components, s.components)
	band := s.thresholds.Classify(overall)

	grade, action := gradeForBand(band)
	return map[string]any{
		"overall": roundTo(overall, 2),
		"grade":   grade,
		"action":  action,
		"band":    band,
	}
}

func gradeForBand(band string) (grade, action string) {
	switch band {
	case types.BandProductionReady:
		return "Excellent", "Auto-approve"
	case types.BandNeedsAttention:
		return "Needs Attention", "Address feedback and re-run validation"
	default:
		return "Rework", "Iterate with assigned specialist agent"
	}
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	return float64(int(v*shift+0.5)) / shift
}

// ImprovementSuggestions expands an assessment into ranked suggestion
// records, sorted by impact (weight times score headroom).
func ImprovementSuggestions(assessment *Assessment) []Suggestion {
	var suggestions []Suggestion
	for _, metric := range assessment.Metrics {
		if metric.Score >= 70 {
			continue
		}
		priority := "medium"
		if metric.Score < 50 {
			priority = "high"
		}
		for _, text := range metric.Suggestions {
			suggestions = append(suggestions, Suggestion{
				Dimension:    metric.Dimension,
				CurrentScore: metric.Score,
				Suggestion:   text,
				Priority:     priority,
				Impact:       metric.Weight * (100 - metric.Score),
			})
		}
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Impact > suggestions[j].Impact
	})
	return suggestions
}

// MetricsSummary summarizes the assessment history.
type MetricsSummary struct {
	TotalAssessments int     `json:"total_assessments"`
	AverageScore     float64 `json:"average_score"`
	MinScore         float64 `json:"min_score"`
	MaxScore         float64 `json:"max_score"`
	PassRate         float64 `json:"pass_rate"`
}

// Summary computes aggregate statistics over the assessment history.
// Returns the zero value when the history is empty.
func (s *Scorer) Summary() MetricsSummary {
	entries := s.history.All()
	if len(entries) == 0 {
		return MetricsSummary{}
	}

	summary := MetricsSummary{
		TotalAssessments: len(entries),
		MinScore:         entries[0].OverallScore,
		MaxScore:         entries[0].OverallScore,
	}
	var sum float64
	passed := 0
	for _, a := range entries {
		sum += a.OverallScore
		if a.OverallScore < summary.MinScore {
			summary.MinScore = a.OverallScore
		}
		if a.OverallScore > summary.MaxScore {
			summary.MaxScore = a.OverallScore
		}
		if a.Passed {
			passed++
		}
	}
	summary.AverageScore = sum / float64(len(entries))
	summary.PassRate = float64(passed) / float64(len(entries))
	return summary
}

// FormatImprovements renders the improvement list as a bullet block for
// prompts and reports.
func FormatImprovements(improvements []string) string {
	if len(improvements) == 0 {
		return ""
	}
	var b strings.Builder
	for i, item := range improvements {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}
