package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dotcommander/qloop/internal/loop"
	"github.com/dotcommander/qloop/internal/scoring"
)

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	indent     bool
	outputFile string
	out        io.Writer
}

// NewJSONFormatter creates a new JSONFormatter
func NewJSONFormatter(indent bool, outputFile string) *JSONFormatter {
	return &JSONFormatter{
		indent:     indent,
		outputFile: outputFile,
		out:        os.Stdout,
	}
}

// SetOutput redirects output to a writer
func (f *JSONFormatter) SetOutput(w io.Writer) {
	f.out = w
}

// JSONReport represents the complete JSON report structure
type JSONReport struct {
	Header     JSONHeader      `json:"header"`
	Assessment *JSONAssessment `json:"assessment,omitempty"`
	Loop       *JSONLoop       `json:"loop,omitempty"`
	Summary    *JSONSummary    `json:"summary,omitempty"`
}

// JSONHeader contains report metadata
type JSONHeader struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// JSONAssessment represents one evaluation
type JSONAssessment struct {
	OverallScore float64        `json:"overall_score"`
	Band         string         `json:"band"`
	Passed       bool           `json:"passed"`
	Threshold    float64        `json:"threshold"`
	Iteration    int            `json:"iteration"`
	Metrics      []JSONMetric   `json:"metrics"`
	Improvements []string       `json:"improvements_needed,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// JSONMetric represents one dimension score
type JSONMetric struct {
	Dimension   string   `json:"dimension"`
	Score       float64  `json:"score"`
	Weight      float64  `json:"weight"`
	Details     string   `json:"details,omitempty"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// JSONLoop represents a loop run
type JSONLoop struct {
	TerminationReason string          `json:"termination_reason"`
	ElapsedSeconds    float64         `json:"elapsed_seconds"`
	Error             string          `json:"error,omitempty"`
	Iterations        []JSONIteration `json:"iterations"`
}

// JSONIteration represents one completed loop iteration
type JSONIteration struct {
	Iteration           int      `json:"iteration"`
	InputQuality        float64  `json:"input_quality"`
	OutputQuality       float64  `json:"output_quality"`
	TimeTaken           float64  `json:"time_taken"`
	Success             bool     `json:"success"`
	TerminationReason   string   `json:"termination_reason,omitempty"`
	ImprovementsApplied []string `json:"improvements_applied,omitempty"`
}

// JSONSummary contains history statistics
type JSONSummary struct {
	TotalAssessments int     `json:"total_assessments"`
	AverageScore     float64 `json:"average_score"`
	MinScore         float64 `json:"min_score"`
	MaxScore         float64 `json:"max_score"`
	PassRate         float64 `json:"pass_rate"`
}

// FormatAssessment formats a single assessment as JSON
func (f *JSONFormatter) FormatAssessment(a *scoring.Assessment) error {
	report := JSONReport{
		Header:     newHeader(),
		Assessment: convertAssessment(a),
	}
	return f.write(report)
}

// FormatLoopResult formats a loop run as JSON
func (f *JSONFormatter) FormatLoopResult(r *loop.Result) error {
	jl := &JSONLoop{
		TerminationReason: string(r.Reason),
		ElapsedSeconds:    r.ElapsedSeconds,
	}
	if r.Err != nil {
		jl.Error = r.Err.Error()
	}
	for _, it := range r.Iterations {
		jl.Iterations = append(jl.Iterations, JSONIteration{
			Iteration:           it.Iteration,
			InputQuality:        it.InputQuality,
			OutputQuality:       it.OutputQuality,
			TimeTaken:           it.TimeTaken,
			Success:             it.Success,
			TerminationReason:   string(it.TerminationReason),
			ImprovementsApplied: it.ImprovementsApplied,
		})
	}

	report := JSONReport{
		Header: newHeader(),
		Loop:   jl,
	}
	if r.Assessment != nil {
		report.Assessment = convertAssessment(r.Assessment)
	}
	return f.write(report)
}

// FormatSummary formats history statistics as JSON
func (f *JSONFormatter) FormatSummary(s scoring.MetricsSummary) error {
	report := JSONReport{
		Header: newHeader(),
		Summary: &JSONSummary{
			TotalAssessments: s.TotalAssessments,
			AverageScore:     s.AverageScore,
			MinScore:         s.MinScore,
			MaxScore:         s.MaxScore,
			PassRate:         s.PassRate,
		},
	}
	return f.write(report)
}

func newHeader() JSONHeader {
	return JSONHeader{
		Tool:      "qloop",
		Version:   "1.0.0",
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func convertAssessment(a *scoring.Assessment) *JSONAssessment {
	ja := &JSONAssessment{
		OverallScore: a.OverallScore,
		Band:         a.Band,
		Passed:       a.Passed,
		Threshold:    a.Threshold,
		Iteration:    a.Iteration,
		Improvements: a.ImprovementsNeeded,
		Metadata:     a.Metadata,
	}
	for _, m := range a.Metrics {
		ja.Metrics = append(ja.Metrics, JSONMetric{
			Dimension:   string(m.Dimension),
			Score:       m.Score,
			Weight:      m.Weight,
			Details:     m.Details,
			Issues:      m.Issues,
			Suggestions: m.Suggestions,
		})
	}
	return ja
}

// write marshals the report and sends it to the output file or writer
func (f *JSONFormatter) write(report JSONReport) error {
	var jsonBytes []byte
	var err error

	if f.indent {
		jsonBytes, err = json.MarshalIndent(report, "", "  ")
	} else {
		jsonBytes, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	if f.outputFile != "" {
		if err := os.WriteFile(f.outputFile, jsonBytes, 0644); err != nil {
			return fmt.Errorf("error writing to file %s: %w", f.outputFile, err)
		}
		return nil
	}

	fmt.Fprintln(f.out, string(jsonBytes))
	return nil
}
