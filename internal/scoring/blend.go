package scoring

import (
	"github.com/dotcommander/qloop/internal/types"
)

// Component names used by the blender.
const (
	ComponentReview       = "review"
	ComponentCompleteness = "completeness"
	ComponentTestCoverage = "test_coverage"
)

// ComponentWeights holds the relative weights for the three blended
// components. Weights are clamped non-negative and renormalized over the
// components actually present for a call.
type ComponentWeights struct {
	Review       float64
	Completeness float64
	TestCoverage float64
}

// DefaultComponentWeights returns the built-in 0.60/0.25/0.15 split.
func DefaultComponentWeights() ComponentWeights {
	return ComponentWeights{Review: 0.60, Completeness: 0.25, TestCoverage: 0.15}
}

func (w ComponentWeights) clamped() ComponentWeights {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}
	return ComponentWeights{
		Review:       clamp(w.Review),
		Completeness: clamp(w.Completeness),
		TestCoverage: clamp(w.TestCoverage),
	}
}

// Blend combines the named component scores into one overall score.
// Absent components (nil entries) are skipped and the remaining weights
// renormalized to sum to 1. With zero components present the overall is 0
// and the returned weight map is empty: an explicit cannot-assess signal.
func Blend(components map[string]*float64, weights ComponentWeights) (float64, map[string]float64) {
	w := weights.clamped()
	raw := map[string]float64{
		ComponentReview:       w.Review,
		ComponentCompleteness: w.Completeness,
		ComponentTestCoverage: w.TestCoverage,
	}

	var totalWeight float64
	for name, weight := range raw {
		if score, ok := components[name]; ok && score != nil {
			totalWeight += weight
		}
	}

	applied := make(map[string]float64)
	if totalWeight <= 0 {
		return 0, applied
	}

	var overall float64
	for _, name := range []string{ComponentReview, ComponentCompleteness, ComponentTestCoverage} {
		score, ok := components[name]
		if !ok || score == nil {
			continue
		}
		normalized := raw[name] / totalWeight
		applied[name] = normalized
		overall += types.Clamp(*score) * normalized
	}

	return types.Clamp(overall), applied
}

// blendComponents derives the three component scores from evaluated
// metrics and context, then blends them.
//
// The review component prefers an externally supplied review metric and
// falls back to the correctness metric. The test-coverage component falls
// back, in order, to the testability metric, a raw coverage percentage,
// and a test pass rate scaled to 0-100.
func blendComponents(metrics []Metric, ctx types.Context, weights ComponentWeights) (float64, map[string]*float64, map[string]float64) {
	byDim := make(map[Dimension]*Metric)
	for i := range metrics {
		m := metrics[i]
		if _, seen := byDim[m.Dimension]; !seen {
			byDim[m.Dimension] = &metrics[i]
		}
	}

	components := make(map[string]*float64)

	if m, ok := byDim[DimReview]; ok {
		components[ComponentReview] = &m.Score
	} else if m, ok := byDim[DimCorrectness]; ok {
		components[ComponentReview] = &m.Score
	}

	if m, ok := byDim[DimCompleteness]; ok {
		components[ComponentCompleteness] = &m.Score
	}

	if score, ok := coverageComponent(byDim, ctx); ok {
		components[ComponentTestCoverage] = &score
	}

	overall, applied := Blend(components, weights)
	return overall, components, applied
}

func coverageComponent(byDim map[Dimension]*Metric, ctx types.Context) (float64, bool) {
	if m, ok := byDim[DimTestability]; ok {
		return m.Score, true
	}
	tr := types.GetMap(ctx, "test_results")
	if cov, ok := types.GetFloat(tr, "coverage"); ok {
		if cov <= 1.0 {
			cov *= 100
		}
		return types.Clamp(cov), true
	}
	if rate, ok := types.GetFloat(tr, "pass_rate"); ok {
		return types.Clamp(rate * 100), true
	}
	return 0, false
}
