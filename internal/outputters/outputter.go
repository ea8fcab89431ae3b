package outputters

import (
	"fmt"

	"github.com/dotcommander/qloop/internal/config"
	"github.com/dotcommander/qloop/internal/loop"
	"github.com/dotcommander/qloop/internal/output"
	"github.com/dotcommander/qloop/internal/scoring"
)

// Formatter renders assessments, loop runs and history summaries.
type Formatter interface {
	FormatAssessment(a *scoring.Assessment) error
	FormatLoopResult(r *loop.Result) error
	FormatSummary(s scoring.MetricsSummary) error
}

// Outputter selects a formatter based on the configured format
type Outputter struct {
	config *config.Config
}

// NewOutputter creates a new Outputter
func NewOutputter(config *config.Config) *Outputter {
	return &Outputter{
		config: config,
	}
}

// Formatter returns the formatter for the given format
func (o *Outputter) Formatter(format string) (Formatter, error) {
	switch format {
	case "console":
		return output.NewConsoleFormatter(o.config.Quiet, o.config.Verbose), nil
	case "json":
		return output.NewJSONFormatter(true, o.config.Output), nil
	case "markdown":
		return output.NewMarkdownFormatter(o.config.Output), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// FormatAssessment renders an assessment using the configured format
func (o *Outputter) FormatAssessment(a *scoring.Assessment) error {
	f, err := o.Formatter(o.config.Format)
	if err != nil {
		return err
	}
	return f.FormatAssessment(a)
}

// FormatLoopResult renders a loop run using the configured format
func (o *Outputter) FormatLoopResult(r *loop.Result) error {
	f, err := o.Formatter(o.config.Format)
	if err != nil {
		return err
	}
	return f.FormatLoopResult(r)
}

// FormatSummary renders history statistics using the configured format
func (o *Outputter) FormatSummary(s scoring.MetricsSummary) error {
	f, err := o.Formatter(o.config.Format)
	if err != nil {
		return err
	}
	return f.FormatSummary(s)
}
