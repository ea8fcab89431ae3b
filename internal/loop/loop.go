// Package loop drives the bounded improvement cycle: evaluate an
// artifact, hand the findings to an external improver, and repeat until
// the quality threshold is met or a stop condition fires.
package loop

import (
	"log"
	"time"

	"github.com/dotcommander/qloop/internal/scoring"
	"github.com/dotcommander/qloop/internal/types"
)

// TerminationReason names the terminal state that ended a loop run.
type TerminationReason string

const (
	ReasonQualityMet              TerminationReason = "quality_met"
	ReasonMaxIterations           TerminationReason = "max_iterations"
	ReasonInsufficientImprovement TerminationReason = "insufficient_improvement"
	ReasonStagnation              TerminationReason = "stagnation"
	ReasonOscillation             TerminationReason = "oscillation"
	ReasonTimeout                 TerminationReason = "timeout"
	ReasonError                   TerminationReason = "error"
)

const (
	// DefaultMaxIterations is used when the caller requests no limit.
	DefaultMaxIterations = 3
	// HardMaxIterations is the ceiling no request can exceed.
	HardMaxIterations = 5
	// DefaultMinImprovement is the minimum per-iteration score gain
	// required to keep iterating.
	DefaultMinImprovement = 5.0
	// StagnationThreshold is the score spread under which the recent
	// history counts as stagnant, and the step size an oscillation
	// swing must exceed.
	StagnationThreshold = 2.0
	// OscillationWindow is how many recent scores the oscillation and
	// stagnation detectors inspect.
	OscillationWindow = 3
)

// Improver revises an artifact using the findings in the loop context.
// It is supplied externally and treated as opaque.
type Improver func(artifact types.Artifact, lc Context) (types.Artifact, error)

// Context is the per-iteration bundle handed to the improver.
type Context struct {
	Assessment          *scoring.Assessment `json:"assessment"`
	ImprovementsNeeded  []string            `json:"improvements_needed"`
	CurrentScore        float64             `json:"current_score"`
	TargetScore         float64             `json:"target_score"`
	Iteration           int                 `json:"iteration"`
	MaxIterations       int                 `json:"max_iterations"`
	RemainingIterations int                 `json:"remaining_iterations"`
}

// IterationResult records one completed evaluate step. InputQuality is
// the previous iteration's score, zero for the first. TimeTaken is the
// step's elapsed seconds as observed between clock polls.
type IterationResult struct {
	Iteration           int               `json:"iteration"`
	InputQuality        float64           `json:"input_quality"`
	OutputQuality       float64           `json:"output_quality"`
	TimeTaken           float64           `json:"time_taken"`
	Success             bool              `json:"success"`
	TerminationReason   TerminationReason `json:"termination_reason,omitempty"`
	ImprovementsApplied []string          `json:"improvements_applied,omitempty"`
}

// Result is the outcome of a full loop run.
type Result struct {
	Artifact       types.Artifact      `json:"artifact"`
	Assessment     *scoring.Assessment `json:"assessment"`
	Iterations     []IterationResult   `json:"iterations"`
	Reason         TerminationReason   `json:"termination_reason"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
	Err            error               `json:"-"`
}

// Controller runs the improvement loop. The timeout is best-effort: the
// clock is polled between steps, never inside one, so a running
// evaluation or improver call is never preempted.
type Controller struct {
	scorer         *scoring.Scorer
	improver       Improver
	evaluate       func(types.Artifact, types.Context, int) *scoring.Assessment
	maxIterations  int
	minImprovement float64
	timeoutSeconds float64
	elapsed        func() float64
	lastElapsed    float64
	logf           func(format string, args ...any)
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithMaxIterations sets the requested iteration limit. Values above
// the hard ceiling are capped with a warning; zero or negative values
// fall back to the default.
func WithMaxIterations(n int) ControllerOption {
	return func(c *Controller) { c.maxIterations = n }
}

// WithMinImprovement sets the per-iteration gain required to continue.
func WithMinImprovement(delta float64) ControllerOption {
	return func(c *Controller) { c.minImprovement = delta }
}

// WithTimeout sets the wall-clock budget in seconds. Zero disables it.
func WithTimeout(seconds float64) ControllerOption {
	return func(c *Controller) { c.timeoutSeconds = seconds }
}

// WithClock replaces the elapsed-seconds source. Intended for tests.
func WithClock(elapsed func() float64) ControllerOption {
	return func(c *Controller) { c.elapsed = elapsed }
}

// WithSignalGrounding makes every evaluation ground its score against
// the deterministic signals in the context.
func WithSignalGrounding() ControllerOption {
	return func(c *Controller) { c.evaluate = c.scorer.EvaluateWithSignals }
}

// WithLoopLogger routes controller warnings to a custom printf sink.
func WithLoopLogger(logf func(format string, args ...any)) ControllerOption {
	return func(c *Controller) { c.logf = logf }
}

// NewController builds a Controller around a scorer and an improver.
func NewController(scorer *scoring.Scorer, improver Improver, opts ...ControllerOption) *Controller {
	c := &Controller{
		scorer:         scorer,
		improver:       improver,
		maxIterations:  DefaultMaxIterations,
		minImprovement: DefaultMinImprovement,
		logf:           log.Printf,
	}
	c.evaluate = scorer.Evaluate
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) effectiveMax() int {
	max := c.maxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}
	if max > HardMaxIterations {
		c.logf("qloop: requested %d iterations, capping at %d", max, HardMaxIterations)
		max = HardMaxIterations
	}
	return max
}

// timedOut polls the clock against the timeout budget. The reading is
// kept for per-step timing and the result's elapsed time.
func (c *Controller) timedOut() bool {
	c.lastElapsed = c.elapsed()
	if c.timeoutSeconds <= 0 {
		return false
	}
	return c.lastElapsed >= c.timeoutSeconds
}

// Run executes the loop on an initial artifact. The returned artifact
// is the last one adopted before termination; an improver output
// produced after the time budget expired is never adopted.
func (c *Controller) Run(artifact types.Artifact, ctx types.Context) *Result {
	if c.elapsed == nil {
		start := time.Now()
		c.elapsed = func() float64 { return time.Since(start).Seconds() }
	}
	c.lastElapsed = 0

	maxIter := c.effectiveMax()
	current := artifact
	previous := 0.0
	var prevAssessment *scoring.Assessment
	var history []float64
	var results []IterationResult
	var runErr error

	reason := ReasonMaxIterations

loop:
	for i := 0; i < maxIter; i++ {
		if c.timedOut() {
			reason = ReasonTimeout
			break
		}
		stepStart := c.lastElapsed

		assessment, err := c.safeEvaluate(current, ctx, i)
		if err != nil {
			reason = ReasonError
			runErr = err
			break
		}
		score := assessment.OverallScore
		cmp := Compare(prevAssessment, assessment)
		if prevAssessment != nil {
			c.logf("qloop: iteration %d scored %.1f (%+.1f, band %s)",
				i, score, cmp.ScoreDelta, cmp.NextBand)
		}
		prevAssessment = assessment
		history = append(history, score)
		results = append(results, IterationResult{
			Iteration:           i,
			InputQuality:        previous,
			OutputQuality:       score,
			Success:             assessment.Passed,
			ImprovementsApplied: topImprovements(assessment.ImprovementsNeeded, 5),
		})
		step := &results[len(results)-1]

		hitTimeout := c.timedOut()
		step.TimeTaken = c.lastElapsed - stepStart

		switch {
		case hitTimeout:
			reason = ReasonTimeout
			break loop
		case assessment.Passed:
			reason = ReasonQualityMet
			break loop
		case detectOscillation(history):
			reason = ReasonOscillation
			break loop
		case detectStagnation(history):
			reason = ReasonStagnation
			break loop
		case i > 0 && score-previous < c.minImprovement:
			reason = ReasonInsufficientImprovement
			break loop
		}

		lc := Context{
			Assessment:          assessment,
			ImprovementsNeeded:  assessment.ImprovementsNeeded,
			CurrentScore:        score,
			TargetScore:         c.scorer.Thresholds().ProductionReady,
			Iteration:           i,
			MaxIterations:       maxIter,
			RemainingIterations: maxIter - i - 1,
		}
		improved, err := c.safeImprove(current, lc)
		if err != nil {
			reason = ReasonError
			runErr = err
			break
		}
		hitTimeout = c.timedOut()
		step.TimeTaken = c.lastElapsed - stepStart
		if hitTimeout {
			reason = ReasonTimeout
			break
		}
		current = improved
		previous = score
	}

	final, err := c.safeEvaluate(current, ctx, len(results))
	if err != nil {
		reason = ReasonError
		runErr = err
	}

	if len(results) > 0 {
		last := &results[len(results)-1]
		last.TerminationReason = reason
		if final != nil {
			last.OutputQuality = final.OverallScore
			last.Success = final.Passed
		}
	}

	return &Result{
		Artifact:       current,
		Assessment:     final,
		Iterations:     results,
		Reason:         reason,
		ElapsedSeconds: c.lastElapsed,
		Err:            runErr,
	}
}

func (c *Controller) safeEvaluate(artifact types.Artifact, ctx types.Context, iteration int) (assessment *scoring.Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("qloop: evaluation failed at iteration %d: %v", iteration, r)
			assessment = nil
			err = &RunError{Stage: "evaluate", Iteration: iteration, Cause: r}
		}
	}()
	return c.evaluate(artifact, ctx, iteration), nil
}

func (c *Controller) safeImprove(artifact types.Artifact, lc Context) (improved types.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("qloop: improver failed at iteration %d: %v", lc.Iteration, r)
			improved = nil
			err = &RunError{Stage: "improve", Iteration: lc.Iteration, Cause: r}
		}
	}()
	if c.improver == nil {
		return nil, &RunError{Stage: "improve", Iteration: lc.Iteration, Cause: "no improver configured"}
	}
	out, ierr := c.improver(artifact, lc)
	if ierr != nil {
		return nil, &RunError{Stage: "improve", Iteration: lc.Iteration, Cause: ierr}
	}
	return out, nil
}

// detectOscillation reports whether the recent scores swing strictly up
// and down with each step larger than the stagnation threshold.
func detectOscillation(history []float64) bool {
	if len(history) < OscillationWindow {
		return false
	}
	window := history[len(history)-OscillationWindow:]

	prevDelta := 0.0
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta >= -StagnationThreshold && delta <= StagnationThreshold {
			return false
		}
		if i > 1 && sameSign(delta, prevDelta) {
			return false
		}
		prevDelta = delta
	}
	return true
}

// detectStagnation reports whether the recent scores all lie within the
// stagnation threshold of each other.
func detectStagnation(history []float64) bool {
	if len(history) < OscillationWindow {
		return false
	}
	window := history[len(history)-OscillationWindow:]

	min, max := window[0], window[0]
	for _, s := range window[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return max-min <= StagnationThreshold
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func topImprovements(improvements []string, n int) []string {
	if len(improvements) <= n {
		return improvements
	}
	return improvements[:n]
}
