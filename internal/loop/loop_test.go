package loop

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dotcommander/qloop/internal/scoring"
	"github.com/dotcommander/qloop/internal/types"
)

func discardLog(string, ...any) {}

// scriptedPrimary scores an artifact by its "score" field so tests can
// drive exact score sequences through the loop.
type scriptedPrimary struct{}

func (scriptedPrimary) EvaluatePrimary(artifact types.Artifact, ctx types.Context) ([]scoring.Metric, []string, map[string]any) {
	score, _ := types.GetFloat(artifact, "score")
	return []scoring.Metric{{Dimension: scoring.DimReview, Score: score, Weight: 1}},
		[]string{"raise the score"}, nil
}

func scriptedScorer() *scoring.Scorer {
	return scoring.NewScorer(
		scoring.WithLogger(discardLog),
		scoring.WithPrimaryEvaluator(scriptedPrimary{}),
	)
}

// sequenceImprover replaces the artifact score with the next value in
// the script.
func sequenceImprover(scores []float64) Improver {
	return func(artifact types.Artifact, lc Context) (types.Artifact, error) {
		next := lc.Iteration + 1
		if next >= len(scores) {
			next = len(scores) - 1
		}
		return types.Artifact{"score": scores[next]}, nil
	}
}

func TestDetectOscillation(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		want    bool
	}{
		{"alternating beyond threshold", []float64{50, 60, 50}, true},
		{"monotonic rise", []float64{50, 55, 60}, false},
		{"too short", []float64{50, 60}, false},
		{"swing inside threshold", []float64{50, 51, 50}, false},
		{"only last window counts", []float64{10, 20, 50, 60, 50}, true},
		{"flat", []float64{50, 50, 50}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectOscillation(tt.history); got != tt.want {
				t.Errorf("detectOscillation(%v) = %v, want %v", tt.history, got, tt.want)
			}
		})
	}
}

func TestDetectStagnation(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		want    bool
	}{
		{"tight spread", []float64{65, 65.5, 65.2}, true},
		{"steady climb", []float64{50, 55, 60}, false},
		{"too short", []float64{65, 65.1}, false},
		{"spread exactly at threshold", []float64{65, 67, 66}, true},
		{"only last window counts", []float64{10, 65, 65.5, 65.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectStagnation(tt.history); got != tt.want {
				t.Errorf("detectStagnation(%v) = %v, want %v", tt.history, got, tt.want)
			}
		})
	}
}

func TestRunStopsWhenQualityMet(t *testing.T) {
	improverCalled := false
	c := NewController(scriptedScorer(), func(artifact types.Artifact, lc Context) (types.Artifact, error) {
		improverCalled = true
		return artifact, nil
	}, WithLoopLogger(discardLog))

	result := c.Run(types.Artifact{"score": 85.0}, types.Context{})

	if result.Reason != ReasonQualityMet {
		t.Fatalf("reason = %s, want %s", result.Reason, ReasonQualityMet)
	}
	if improverCalled {
		t.Error("improver called despite passing on the first evaluation")
	}
	if len(result.Iterations) != 1 {
		t.Errorf("iterations = %d, want 1", len(result.Iterations))
	}
	last := result.Iterations[0]
	if !last.Success || last.TerminationReason != ReasonQualityMet {
		t.Errorf("last iteration = %+v, want success with quality_met", last)
	}
	if result.Assessment == nil || !result.Assessment.Passed {
		t.Error("final assessment should pass")
	}
}

func TestRunHardIterationCeiling(t *testing.T) {
	var warnings int
	logf := func(format string, args ...any) { warnings++ }

	// Steady gains of 10 keep every stop condition quiet until the
	// ceiling is hit.
	scores := []float64{10, 20, 30, 40, 50, 60, 70}
	c := NewController(scriptedScorer(), sequenceImprover(scores),
		WithMaxIterations(1000), WithLoopLogger(logf))

	result := c.Run(types.Artifact{"score": scores[0]}, types.Context{})

	if len(result.Iterations) > HardMaxIterations {
		t.Fatalf("iterations = %d, exceeds hard ceiling %d", len(result.Iterations), HardMaxIterations)
	}
	if result.Reason != ReasonMaxIterations {
		t.Errorf("reason = %s, want %s", result.Reason, ReasonMaxIterations)
	}
	if warnings == 0 {
		t.Error("capping the requested iteration count was not logged")
	}
}

func TestRunInsufficientImprovement(t *testing.T) {
	c := NewController(scriptedScorer(), sequenceImprover([]float64{50, 52}),
		WithLoopLogger(discardLog))

	result := c.Run(types.Artifact{"score": 50.0}, types.Context{})

	if result.Reason != ReasonInsufficientImprovement {
		t.Fatalf("reason = %s, want %s", result.Reason, ReasonInsufficientImprovement)
	}
	if len(result.Iterations) != 2 {
		t.Errorf("iterations = %d, want 2", len(result.Iterations))
	}
}

func TestRunStagnation(t *testing.T) {
	c := NewController(scriptedScorer(), sequenceImprover([]float64{65, 65.5, 65.2}),
		WithMinImprovement(0.1), WithLoopLogger(discardLog))

	result := c.Run(types.Artifact{"score": 65.0}, types.Context{})

	if result.Reason != ReasonStagnation {
		t.Fatalf("reason = %s, want %s", result.Reason, ReasonStagnation)
	}
	if len(result.Iterations) != 3 {
		t.Errorf("iterations = %d, want 3", len(result.Iterations))
	}
}

func TestRunOscillation(t *testing.T) {
	c := NewController(scriptedScorer(), sequenceImprover([]float64{50, 60, 50}),
		WithLoopLogger(discardLog))

	result := c.Run(types.Artifact{"score": 50.0}, types.Context{})

	if result.Reason != ReasonOscillation {
		t.Fatalf("reason = %s, want %s", result.Reason, ReasonOscillation)
	}
	if len(result.Iterations) != 3 {
		t.Errorf("iterations = %d, want 3", len(result.Iterations))
	}
}

func TestRunRecordsInputQualityAndTimeTaken(t *testing.T) {
	// Each clock read advances one second: pre-check, post-evaluate and
	// post-improve, so every completed step spans two seconds.
	reads := 0
	clock := func() float64 {
		reads++
		return float64(reads)
	}

	scores := []float64{50, 60, 70}
	c := NewController(scriptedScorer(), sequenceImprover(scores),
		WithMaxIterations(2), WithClock(clock), WithLoopLogger(discardLog))

	result := c.Run(types.Artifact{"score": scores[0]}, types.Context{})

	if len(result.Iterations) != 2 {
		t.Fatalf("iterations = %d, want 2", len(result.Iterations))
	}
	first, second := result.Iterations[0], result.Iterations[1]
	if first.InputQuality != 0 {
		t.Errorf("first input quality = %v, want 0", first.InputQuality)
	}
	if second.InputQuality != 50.0 {
		t.Errorf("second input quality = %v, want the prior score 50", second.InputQuality)
	}
	if first.TimeTaken != 2.0 || second.TimeTaken != 2.0 {
		t.Errorf("time taken = %v and %v, want 2s per step", first.TimeTaken, second.TimeTaken)
	}

	raw, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshaling iteration: %v", err)
	}
	for _, key := range []string{`"input_quality"`, `"output_quality"`, `"time_taken"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("serialized iteration missing %s: %s", key, raw)
		}
	}
}

func TestRunTimeoutDiscardsImproverOutput(t *testing.T) {
	reads := 0
	values := []float64{0.0, 0.0, 100.0}
	clock := func() float64 {
		v := values[len(values)-1]
		if reads < len(values) {
			v = values[reads]
		}
		reads++
		return v
	}

	improverCalled := false
	c := NewController(scriptedScorer(), func(artifact types.Artifact, lc Context) (types.Artifact, error) {
		improverCalled = true
		return types.Artifact{"score": 99.0}, nil
	}, WithTimeout(10.0), WithClock(clock), WithLoopLogger(discardLog))

	input := types.Artifact{"score": 50.0}
	result := c.Run(input, types.Context{})

	if result.Reason != ReasonTimeout {
		t.Fatalf("reason = %s, want %s", result.Reason, ReasonTimeout)
	}
	if !improverCalled {
		t.Error("improver was never reached")
	}
	if reads != 3 {
		t.Errorf("clock read %d times, want the 3 checks of iteration 0", reads)
	}
	if len(result.Iterations) != 1 {
		t.Fatalf("iterations = %d, want exactly 1", len(result.Iterations))
	}
	// The improved artifact came back after the budget expired, so the
	// input stays current.
	if got, _ := types.GetFloat(result.Artifact, "score"); got != 50.0 {
		t.Errorf("final artifact score = %v, want the unmodified input 50", got)
	}
	if result.Assessment == nil || result.Assessment.OverallScore != 50.0 {
		t.Errorf("final assessment = %+v, want the input's score", result.Assessment)
	}
	if result.Iterations[0].OutputQuality != 50.0 {
		t.Errorf("iteration output quality = %v, want 50", result.Iterations[0].OutputQuality)
	}
	if result.Iterations[0].TerminationReason != ReasonTimeout {
		t.Errorf("iteration reason = %s, want timeout", result.Iterations[0].TerminationReason)
	}
}

func TestRunPreCheckTimeoutSkipsEvaluation(t *testing.T) {
	c := NewController(scriptedScorer(), sequenceImprover([]float64{50}),
		WithTimeout(10.0), WithClock(func() float64 { return 100.0 }),
		WithLoopLogger(discardLog))

	result := c.Run(types.Artifact{"score": 50.0}, types.Context{})

	if result.Reason != ReasonTimeout {
		t.Fatalf("reason = %s, want %s", result.Reason, ReasonTimeout)
	}
	if len(result.Iterations) != 0 {
		t.Errorf("iterations = %d, want 0 (iteration discarded before scoring)", len(result.Iterations))
	}
	if result.Assessment == nil {
		t.Error("final evaluation should still run after timeout")
	}
}

func TestRunImproverErrorKeepsLastGoodArtifact(t *testing.T) {
	boom := errors.New("improver unavailable")
	c := NewController(scriptedScorer(), func(artifact types.Artifact, lc Context) (types.Artifact, error) {
		return nil, boom
	}, WithLoopLogger(discardLog))

	input := types.Artifact{"score": 50.0}
	result := c.Run(input, types.Context{})

	if result.Reason != ReasonError {
		t.Fatalf("reason = %s, want %s", result.Reason, ReasonError)
	}
	if got, _ := types.GetFloat(result.Artifact, "score"); got != 50.0 {
		t.Errorf("artifact score = %v, want last-good input", got)
	}
	if result.Err == nil || !errors.Is(result.Err, boom) {
		t.Errorf("result error = %v, want wrapped improver error", result.Err)
	}
}

func TestRunImproverPanicBecomesError(t *testing.T) {
	c := NewController(scriptedScorer(), func(artifact types.Artifact, lc Context) (types.Artifact, error) {
		panic("improver crashed")
	}, WithLoopLogger(discardLog))

	result := c.Run(types.Artifact{"score": 50.0}, types.Context{})

	if result.Reason != ReasonError {
		t.Fatalf("reason = %s, want %s", result.Reason, ReasonError)
	}
	if result.Err == nil {
		t.Error("panic should surface as a run error")
	}
}

func TestRunImproverReceivesContext(t *testing.T) {
	var got Context
	c := NewController(scriptedScorer(), func(artifact types.Artifact, lc Context) (types.Artifact, error) {
		got = lc
		return types.Artifact{"score": 90.0}, nil
	}, WithLoopLogger(discardLog))

	result := c.Run(types.Artifact{"score": 40.0}, types.Context{})

	if got.CurrentScore != 40.0 {
		t.Errorf("current score = %v, want 40", got.CurrentScore)
	}
	if got.TargetScore != scoring.DefaultProductionReady {
		t.Errorf("target score = %v, want %v", got.TargetScore, scoring.DefaultProductionReady)
	}
	if got.Iteration != 0 || got.MaxIterations != DefaultMaxIterations {
		t.Errorf("iteration bookkeeping = %+v", got)
	}
	if got.RemainingIterations != DefaultMaxIterations-1 {
		t.Errorf("remaining = %d, want %d", got.RemainingIterations, DefaultMaxIterations-1)
	}
	if len(got.ImprovementsNeeded) == 0 {
		t.Error("improvements missing from loop context")
	}
	if result.Reason != ReasonQualityMet {
		t.Errorf("reason = %s, want quality met after the improver fix", result.Reason)
	}
}

func TestCompare(t *testing.T) {
	prev := &scoring.Assessment{OverallScore: 50, Band: types.BandNeedsAttention}
	next := &scoring.Assessment{OverallScore: 75, Band: types.BandProductionReady}

	cmp := Compare(prev, next)
	if cmp.ScoreDelta != 25 || !cmp.Improved || !cmp.BandChanged {
		t.Errorf("comparison = %+v", cmp)
	}

	baseline := Compare(nil, next)
	if baseline.ScoreDelta != 0 || baseline.NextBand != types.BandProductionReady {
		t.Errorf("baseline comparison = %+v", baseline)
	}
}
