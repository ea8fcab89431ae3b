package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotcommander/qloop/internal/loop"
	"github.com/dotcommander/qloop/internal/scoring"
)

func sampleAssessment() *scoring.Assessment {
	return &scoring.Assessment{
		OverallScore: 61.5,
		Band:         "needs_attention",
		Passed:       false,
		Threshold:    70,
		Iteration:    2,
		Metrics: []scoring.Metric{
			{Dimension: scoring.DimCorrectness, Score: 80, Weight: 0.25},
			{
				Dimension:   scoring.DimCompleteness,
				Score:       40,
				Weight:      0.15,
				Issues:      []string{"no execution evidence"},
				Suggestions: []string{"include files_modified"},
			},
		},
		ImprovementsNeeded: []string{"completeness: include files_modified"},
	}
}

func sampleLoopResult() *loop.Result {
	return &loop.Result{
		Assessment: sampleAssessment(),
		Iterations: []loop.IterationResult{
			{Iteration: 0, InputQuality: 0, OutputQuality: 50, TimeTaken: 0.5, Success: false, ImprovementsApplied: []string{"fix tests"}},
			{Iteration: 1, InputQuality: 50, OutputQuality: 61.5, TimeTaken: 0.7, Success: false, TerminationReason: loop.ReasonMaxIterations},
		},
		Reason:         loop.ReasonMaxIterations,
		ElapsedSeconds: 1.2,
	}
}

func TestConsoleFormatAssessment(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(false, false)
	f.SetOutput(&buf)

	if err := f.FormatAssessment(sampleAssessment()); err != nil {
		t.Fatalf("FormatAssessment() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"score 61.5/100 [needs_attention] (threshold 70)",
		"correctness",
		"! completeness",
		"Improvements needed:",
		"1. completeness: include files_modified",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "no execution evidence") {
		t.Errorf("issues should only appear in verbose mode:\n%s", out)
	}
}

func TestConsoleFormatAssessmentVerbose(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(false, true)
	f.SetOutput(&buf)

	if err := f.FormatAssessment(sampleAssessment()); err != nil {
		t.Fatalf("FormatAssessment() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "no execution evidence") {
		t.Errorf("verbose output missing issue text:\n%s", out)
	}
	if !strings.Contains(out, "include files_modified") {
		t.Errorf("verbose output missing suggestion text:\n%s", out)
	}
}

func TestConsoleQuietSuppressesOutput(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(true, false)
	f.SetOutput(&buf)

	if err := f.FormatAssessment(sampleAssessment()); err != nil {
		t.Fatalf("FormatAssessment() error = %v", err)
	}
	if err := f.FormatLoopResult(sampleLoopResult()); err != nil {
		t.Fatalf("FormatLoopResult() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("quiet mode produced output: %q", buf.String())
	}
}

func TestConsoleFormatLoopResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(false, false)
	f.SetOutput(&buf)

	if err := f.FormatLoopResult(sampleLoopResult()); err != nil {
		t.Fatalf("FormatLoopResult() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"iteration 0: 50.0",
		"iteration 1: 61.5 (+11.5)",
		"stopped: max_iterations after 2 iteration(s)",
		"score 61.5/100",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsoleFormatSummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(false, false)
	f.SetOutput(&buf)

	s := scoring.MetricsSummary{
		TotalAssessments: 4,
		AverageScore:     62.5,
		MinScore:         40,
		MaxScore:         85,
		PassRate:         0.25,
	}
	if err := f.FormatSummary(s); err != nil {
		t.Fatalf("FormatSummary() error = %v", err)
	}
	if !strings.Contains(buf.String(), "4 assessments, avg 62.5 (min 40.0, max 85.0), pass rate 25%") {
		t.Errorf("unexpected summary output: %q", buf.String())
	}
}

func TestConsoleFormatSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(false, false)
	f.SetOutput(&buf)

	if err := f.FormatSummary(scoring.MetricsSummary{}); err != nil {
		t.Fatalf("FormatSummary() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No assessments recorded") {
		t.Errorf("unexpected empty summary output: %q", buf.String())
	}
}

func TestJSONFormatAssessment(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(false, "")
	f.SetOutput(&buf)

	if err := f.FormatAssessment(sampleAssessment()); err != nil {
		t.Fatalf("FormatAssessment() error = %v", err)
	}

	var report JSONReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if report.Header.Tool != "qloop" {
		t.Errorf("Header.Tool = %q, want qloop", report.Header.Tool)
	}
	if report.Assessment == nil {
		t.Fatal("Assessment is nil")
	}
	if report.Assessment.OverallScore != 61.5 {
		t.Errorf("OverallScore = %v, want 61.5", report.Assessment.OverallScore)
	}
	if len(report.Assessment.Metrics) != 2 {
		t.Errorf("len(Metrics) = %d, want 2", len(report.Assessment.Metrics))
	}
	if report.Loop != nil || report.Summary != nil {
		t.Error("Loop and Summary sections should be omitted")
	}
}

func TestJSONFormatAssessmentIndented(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(true, "")
	f.SetOutput(&buf)

	if err := f.FormatAssessment(sampleAssessment()); err != nil {
		t.Fatalf("FormatAssessment() error = %v", err)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("indented output expected")
	}
}

func TestJSONFormatLoopResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(false, "")
	f.SetOutput(&buf)

	if err := f.FormatLoopResult(sampleLoopResult()); err != nil {
		t.Fatalf("FormatLoopResult() error = %v", err)
	}

	var report JSONReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if report.Loop == nil {
		t.Fatal("Loop is nil")
	}
	if report.Loop.TerminationReason != "max_iterations" {
		t.Errorf("TerminationReason = %q, want max_iterations", report.Loop.TerminationReason)
	}
	if len(report.Loop.Iterations) != 2 {
		t.Fatalf("len(Iterations) = %d, want 2", len(report.Loop.Iterations))
	}
	second := report.Loop.Iterations[1]
	if second.InputQuality != 50 || second.TimeTaken != 0.7 {
		t.Errorf("iteration 1 = %+v, want input_quality 50 and time_taken 0.7", second)
	}
	if report.Assessment == nil {
		t.Error("final assessment should be included")
	}
}

func TestJSONFormatToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	f := NewJSONFormatter(true, path)

	if err := f.FormatSummary(scoring.MetricsSummary{TotalAssessments: 1, AverageScore: 70, MinScore: 70, MaxScore: 70, PassRate: 1}); err != nil {
		t.Fatalf("FormatSummary() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report file: %v", err)
	}
	var report JSONReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("file is not valid JSON: %v", err)
	}
	if report.Summary == nil || report.Summary.TotalAssessments != 1 {
		t.Errorf("unexpected summary in file: %+v", report.Summary)
	}
}

func TestMarkdownFormatAssessment(t *testing.T) {
	var buf bytes.Buffer
	f := NewMarkdownFormatter("")
	f.SetOutput(&buf)

	if err := f.FormatAssessment(sampleAssessment()); err != nil {
		t.Fatalf("FormatAssessment() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Quality Report",
		"**Score:** 61.5/100 (needs_attention) ❌",
		"| Dimension | Score | Weight | Issues |",
		"| completeness | 40.0 | 0.15 | 1 |",
		"### Improvements Needed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMarkdownFormatLoopResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewMarkdownFormatter("")
	f.SetOutput(&buf)

	if err := f.FormatLoopResult(sampleLoopResult()); err != nil {
		t.Fatalf("FormatLoopResult() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Improvement Loop Report",
		"| 1 | 50.0 | ❌ | 1 |",
		"| 2 | 61.5 (+11.5) | ❌ | 0 |",
		"**Stopped:** max_iterations after 2 iteration(s)",
		"## Final Assessment",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMarkdownFormatSummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewMarkdownFormatter("")
	f.SetOutput(&buf)

	s := scoring.MetricsSummary{TotalAssessments: 2, AverageScore: 55, MinScore: 40, MaxScore: 70, PassRate: 0.5}
	if err := f.FormatSummary(s); err != nil {
		t.Fatalf("FormatSummary() error = %v", err)
	}
	if !strings.Contains(buf.String(), "| Pass Rate | 50% |") {
		t.Errorf("unexpected summary output:\n%s", buf.String())
	}
}

func TestMarkdownFormatToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	f := NewMarkdownFormatter(path)

	if err := f.FormatAssessment(sampleAssessment()); err != nil {
		t.Fatalf("FormatAssessment() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report file: %v", err)
	}
	if !strings.Contains(string(data), "# Quality Report") {
		t.Errorf("file missing header:\n%s", data)
	}
}
