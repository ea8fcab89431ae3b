// Package scoring implements the multi-dimensional quality assessment
// engine: per-dimension evaluators, weighted score blending with graceful
// degradation, threshold band classification, and deterministic-signal
// grounding.
package scoring

import (
	"sync"
	"time"

	"github.com/dotcommander/qloop/internal/types"
)

// Dimension identifies one quality dimension.
type Dimension string

// The nine named dimensions. Review is supplied by an external reviewer
// (a primary evaluator or a review sub-object in the context) rather than
// a built-in evaluator.
const (
	DimCorrectness     Dimension = "correctness"
	DimCompleteness    Dimension = "completeness"
	DimMaintainability Dimension = "maintainability"
	DimSecurity        Dimension = "security"
	DimPerformance     Dimension = "performance"
	DimScalability     Dimension = "scalability"
	DimTestability     Dimension = "testability"
	DimUsability       Dimension = "usability"
	DimReview          Dimension = "review"
)

// Metric is one dimension's result.
type Metric struct {
	Dimension   Dimension `json:"dimension"`
	Score       float64   `json:"score"`  // 0-100, clamped at creation
	Weight      float64   `json:"weight"` // 0-1
	Details     string    `json:"details"`
	Issues      []string  `json:"issues,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Assessment is the result of one evaluate call. It is created once per
// call and append to history; only the optional signal-grounding step may
// later replace OverallScore/Passed/Band and augment Metadata and the
// improvement list.
type Assessment struct {
	OverallScore       float64        `json:"overall_score"`
	Metrics            []Metric       `json:"metrics"`
	Timestamp          time.Time      `json:"timestamp"`
	Iteration          int            `json:"iteration"`
	Passed             bool           `json:"passed"`
	Threshold          float64        `json:"threshold"`
	Band               string         `json:"band"`
	ImprovementsNeeded []string       `json:"improvements_needed,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// Suggestion is a ranked improvement suggestion derived from a metric.
type Suggestion struct {
	Dimension    Dimension `json:"dimension"`
	CurrentScore float64   `json:"current_score"`
	Suggestion   string    `json:"suggestion"`
	Priority     string    `json:"priority"` // high or medium
	Impact       float64   `json:"impact"`   // weight * (100 - score)
}

// Evaluator scores one dimension of an artifact.
type Evaluator interface {
	Evaluate(artifact types.Artifact, ctx types.Context) Metric
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(artifact types.Artifact, ctx types.Context) Metric

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(artifact types.Artifact, ctx types.Context) Metric {
	return f(artifact, ctx)
}

// PrimaryEvaluator is an optional strategy that replaces the built-in
// dimension pass. When it returns a non-empty metrics list for a call, its
// metrics, improvement list, and metadata are used wholesale.
type PrimaryEvaluator interface {
	EvaluatePrimary(artifact types.Artifact, ctx types.Context) (metrics []Metric, improvements []string, metadata map[string]any)
}

// DefaultDimensionWeights returns the built-in relative dimension weights.
func DefaultDimensionWeights() map[Dimension]float64 {
	return map[Dimension]float64{
		DimCorrectness:     0.25,
		DimCompleteness:    0.20,
		DimMaintainability: 0.10,
		DimSecurity:        0.10,
		DimPerformance:     0.10,
		DimScalability:     0.10,
		DimTestability:     0.10,
		DimUsability:       0.05,
	}
}

// History is a bounded, append-only record of assessments. Appends past
// the capacity evict the oldest entry. Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []*Assessment
	limit   int
}

// NewHistory creates a history bounded at limit entries (0 means the
// default of 100).
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit}
}

// Append records an assessment, evicting the oldest when full.
func (h *History) Append(a *Assessment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, a)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// All returns a snapshot of the recorded assessments, oldest first.
func (h *History) All() []*Assessment {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Assessment, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded assessments.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Reset clears the history.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
