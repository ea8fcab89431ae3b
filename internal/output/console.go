package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dotcommander/qloop/internal/loop"
	"github.com/dotcommander/qloop/internal/scoring"
	"github.com/dotcommander/qloop/internal/types"
)

// ConsoleFormatter formats output for console display
type ConsoleFormatter struct {
	quiet     bool
	verbose   bool
	colorize  bool
	animate   bool
	out       io.Writer
	startTime time.Time
}

// NewConsoleFormatter creates a new ConsoleFormatter
func NewConsoleFormatter(quiet, verbose bool) *ConsoleFormatter {
	return &ConsoleFormatter{
		quiet:     quiet,
		verbose:   verbose,
		colorize:  true,
		animate:   true,
		out:       os.Stdout,
		startTime: time.Now(),
	}
}

// SetOutput redirects output to a writer. Color and animation are
// disabled since the writer is not a terminal.
func (f *ConsoleFormatter) SetOutput(w io.Writer) {
	f.out = w
	f.colorize = false
	f.animate = false
}

// FormatAssessment renders a single assessment
func (f *ConsoleFormatter) FormatAssessment(a *scoring.Assessment) error {
	if f.quiet {
		return nil
	}

	status := "✗"
	if a.Passed {
		status = "✓"
	}
	fmt.Fprintf(f.out, "%s score %.1f/100 [%s] (threshold %.0f)\n",
		f.bandStyle(a.Band).Render(status), a.OverallScore, a.Band, a.Threshold)

	for _, m := range a.Metrics {
		marker := " "
		if m.Score < 50 {
			marker = "!"
		}
		fmt.Fprintf(f.out, "  %s %-16s %5.1f\n", marker, m.Dimension, m.Score)
		if f.verbose {
			for _, issue := range m.Issues {
				fmt.Fprintf(f.out, "      ✘ %s\n", f.severityStyle("error").Render(issue))
			}
			for _, s := range m.Suggestions {
				fmt.Fprintf(f.out, "      💡 %s\n", f.severityStyle("suggestion").Render(s))
			}
		}
	}

	if len(a.ImprovementsNeeded) > 0 {
		fmt.Fprintf(f.out, "\nImprovements needed:\n")
		for i, item := range a.ImprovementsNeeded {
			fmt.Fprintf(f.out, "  %d. %s\n", i+1, item)
		}
	}

	return nil
}

// FormatLoopResult renders a full loop run with its iteration trace
func (f *ConsoleFormatter) FormatLoopResult(r *loop.Result) error {
	if f.quiet {
		return nil
	}

	for i, it := range r.Iterations {
		delta := ""
		if i > 0 {
			delta = fmt.Sprintf(" (%+.1f)", it.OutputQuality-r.Iterations[i-1].OutputQuality)
		}
		fmt.Fprintf(f.out, "iteration %d: %.1f%s\n", it.Iteration, it.OutputQuality, delta)
	}

	reasonStyle := f.bandStyle(types.BandIterate)
	if r.Reason == loop.ReasonQualityMet {
		reasonStyle = f.bandStyle(types.BandProductionReady)
	}
	fmt.Fprintf(f.out, "stopped: %s after %d iteration(s)\n",
		reasonStyle.Render(string(r.Reason)), len(r.Iterations))

	if r.Err != nil {
		fmt.Fprintf(f.out, "error: %v\n", r.Err)
	}

	if r.Assessment != nil {
		fmt.Fprintln(f.out)
		if err := f.FormatAssessment(r.Assessment); err != nil {
			return err
		}
		if r.Assessment.Passed && f.animate {
			printCelebration(f.out, "Quality threshold met")
		}
	}

	return nil
}

// FormatSummary renders history statistics
func (f *ConsoleFormatter) FormatSummary(s scoring.MetricsSummary) error {
	if f.quiet {
		return nil
	}
	if s.TotalAssessments == 0 {
		fmt.Fprintln(f.out, "No assessments recorded")
		return nil
	}
	fmt.Fprintf(f.out, "%d assessments, avg %.1f (min %.1f, max %.1f), pass rate %.0f%%\n",
		s.TotalAssessments, s.AverageScore, s.MinScore, s.MaxScore, s.PassRate*100)
	return nil
}

// bandStyle returns the lipgloss style for a score band
func (f *ConsoleFormatter) bandStyle(band string) lipgloss.Style {
	if !f.colorize {
		return lipgloss.NewStyle()
	}
	switch band {
	case types.BandProductionReady:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	case types.BandNeedsAttention:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // red
	}
}

// severityStyle returns the lipgloss style for an issue severity
func (f *ConsoleFormatter) severityStyle(severity string) lipgloss.Style {
	if !f.colorize {
		return lipgloss.NewStyle()
	}
	switch severity {
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // red
	case "warning":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7")) // gray
	}
}
