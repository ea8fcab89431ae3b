package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dotcommander/qloop/internal/loop"
	"github.com/dotcommander/qloop/internal/scoring"
)

// MarkdownFormatter formats output as Markdown
type MarkdownFormatter struct {
	outputFile string
	out        io.Writer
}

// NewMarkdownFormatter creates a new MarkdownFormatter
func NewMarkdownFormatter(outputFile string) *MarkdownFormatter {
	return &MarkdownFormatter{
		outputFile: outputFile,
		out:        os.Stdout,
	}
}

// SetOutput redirects output to a writer
func (f *MarkdownFormatter) SetOutput(w io.Writer) {
	f.out = w
}

// FormatAssessment renders one assessment as a Markdown report
func (f *MarkdownFormatter) FormatAssessment(a *scoring.Assessment) error {
	var md strings.Builder
	md.WriteString("# Quality Report\n\n")
	writeAssessment(&md, a)
	return f.write(md.String())
}

// FormatLoopResult renders a loop run as a Markdown report
func (f *MarkdownFormatter) FormatLoopResult(r *loop.Result) error {
	var md strings.Builder
	md.WriteString("# Improvement Loop Report\n\n")

	md.WriteString("## Iterations\n\n")
	if len(r.Iterations) == 0 {
		md.WriteString("No iterations completed.\n\n")
	} else {
		md.WriteString("| Iteration | Score | Passed | Improvements Applied |\n")
		md.WriteString("|-----------|-------|--------|----------------------|\n")
		for i, it := range r.Iterations {
			delta := ""
			if i > 0 {
				delta = fmt.Sprintf(" (%+.1f)", it.OutputQuality-r.Iterations[i-1].OutputQuality)
			}
			md.WriteString(fmt.Sprintf("| %d | %.1f%s | %s | %d |\n",
				it.Iteration+1, it.OutputQuality, delta,
				passedEmoji(it.Success), len(it.ImprovementsApplied)))
		}
		md.WriteString("\n")
	}

	md.WriteString(fmt.Sprintf("**Stopped:** %s after %d iteration(s) in %.1fs\n\n",
		r.Reason, len(r.Iterations), r.ElapsedSeconds))
	if r.Err != nil {
		md.WriteString(fmt.Sprintf("**Error:** %s\n\n", r.Err.Error()))
	}

	if r.Assessment != nil {
		md.WriteString("## Final Assessment\n\n")
		writeAssessment(&md, r.Assessment)
	}
	return f.write(md.String())
}

// FormatSummary renders history statistics as a Markdown table
func (f *MarkdownFormatter) FormatSummary(s scoring.MetricsSummary) error {
	var md strings.Builder
	md.WriteString("# Assessment Summary\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Total Assessments | %d |\n", s.TotalAssessments))
	md.WriteString(fmt.Sprintf("| Average Score | %.1f |\n", s.AverageScore))
	md.WriteString(fmt.Sprintf("| Min Score | %.1f |\n", s.MinScore))
	md.WriteString(fmt.Sprintf("| Max Score | %.1f |\n", s.MaxScore))
	md.WriteString(fmt.Sprintf("| Pass Rate | %.0f%% |\n", s.PassRate*100))
	return f.write(md.String())
}

func writeAssessment(md *strings.Builder, a *scoring.Assessment) {
	md.WriteString(fmt.Sprintf("**Score:** %.1f/100 (%s) %s\n\n",
		a.OverallScore, a.Band, passedEmoji(a.Passed)))
	md.WriteString(fmt.Sprintf("**Threshold:** %.0f\n\n", a.Threshold))

	md.WriteString("### Dimensions\n\n")
	md.WriteString("| Dimension | Score | Weight | Issues |\n")
	md.WriteString("|-----------|-------|--------|--------|\n")
	for _, m := range a.Metrics {
		md.WriteString(fmt.Sprintf("| %s | %.1f | %.2f | %d |\n",
			m.Dimension, m.Score, m.Weight, len(m.Issues)))
	}
	md.WriteString("\n")

	if len(a.ImprovementsNeeded) > 0 {
		md.WriteString("### Improvements Needed\n\n")
		for i, imp := range a.ImprovementsNeeded {
			md.WriteString(fmt.Sprintf("%d. %s\n", i+1, imp))
		}
		md.WriteString("\n")
	}
}

func passedEmoji(passed bool) string {
	if passed {
		return "✅"
	}
	return "❌"
}

func (f *MarkdownFormatter) write(content string) error {
	if f.outputFile != "" {
		if err := os.WriteFile(f.outputFile, []byte(content), 0644); err != nil {
			return fmt.Errorf("error writing to file %s: %w", f.outputFile, err)
		}
		return nil
	}
	_, err := fmt.Fprint(f.out, content)
	return err
}
