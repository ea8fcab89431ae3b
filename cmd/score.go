package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/qloop/internal/baseline"
	"github.com/dotcommander/qloop/internal/config"
	cueval "github.com/dotcommander/qloop/internal/cue"
	"github.com/dotcommander/qloop/internal/outputters"
	"github.com/dotcommander/qloop/internal/scoring"
	"github.com/dotcommander/qloop/internal/types"
)

var (
	scoreContextPath    string
	scoreThreshold      float64
	scoreSignals        bool
	scoreValidate       bool
	scoreBaselinePath   string
	scoreBaselineCreate bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <artifact>",
	Short: "Evaluate an artifact once and report its quality score",
	Long: `Evaluates a task execution artifact across the weighted quality dimensions
and reports the overall score, band and improvement list. Tool reports
discovered under --reports ground the score: hard failures cap it, clean
runs earn a bounded bonus.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runScore(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitFunc(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVarP(&scoreContextPath, "context", "c", "", "Context file (JSON or YAML)")
	scoreCmd.Flags().Float64VarP(&scoreThreshold, "threshold", "t", 0, "Pass threshold override")
	scoreCmd.Flags().BoolVarP(&scoreSignals, "signals", "s", true, "Ground the score against discovered tool signals")
	scoreCmd.Flags().BoolVar(&scoreValidate, "validate", false, "Validate artifact and context against their schemas first")
	scoreCmd.Flags().StringVar(&scoreBaselinePath, "baseline", "", "Baseline file of accepted improvement findings")
	scoreCmd.Flags().BoolVar(&scoreBaselineCreate, "baseline-create", false, "Write the current improvement findings to the baseline file")
}

func runScore(artifactPath string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	artifact, ctx, err := loadInputs(cfg, artifactPath, scoreContextPath)
	if err != nil {
		return err
	}

	if scoreValidate {
		if err := validateDocuments(artifactPath, artifact, ctx); err != nil {
			return err
		}
	}

	scorer := scoring.NewScorer(scorerOptions(cfg)...)

	var assessment *scoring.Assessment
	if scoreSignals {
		assessment = scorer.EvaluateWithSignals(artifact, ctx, 0)
	} else {
		assessment = scorer.Evaluate(artifact, ctx, 0)
	}

	if scoreBaselinePath != "" {
		if scoreBaselineCreate {
			b := baseline.Create(assessment.ImprovementsNeeded)
			if err := b.Save(scoreBaselinePath); err != nil {
				return fmt.Errorf("error writing baseline: %w", err)
			}
		} else {
			b, err := baseline.Load(scoreBaselinePath)
			if err != nil {
				return fmt.Errorf("error loading baseline: %w", err)
			}
			assessment.ImprovementsNeeded = b.Filter(assessment.ImprovementsNeeded)
		}
	}

	if cfg.History.File != "" {
		if err := appendHistory(cfg.History.File, assessment); err != nil && !cfg.Quiet {
			fmt.Fprintf(os.Stderr, "Warning: could not record history: %v\n", err)
		}
	}

	outputter := outputters.NewOutputter(cfg)
	if err := outputter.FormatAssessment(assessment); err != nil {
		return fmt.Errorf("error formatting output: %w", err)
	}

	if !assessment.Passed {
		exitFunc(1)
	}
	return nil
}

// scorerOptions builds the scorer options from config plus the
// command-line threshold override.
func scorerOptions(cfg *config.Config) []scoring.Option {
	opts := cfg.ScorerOptions()
	if scoreThreshold > 0 {
		opts = append(opts, scoring.WithThreshold(scoreThreshold))
	}
	return opts
}

// validateDocuments checks the artifact and context against their schemas
// and fails on any error-severity finding.
func validateDocuments(artifactPath string, artifact types.Artifact, ctx types.Context) error {
	v := cueval.NewValidator()
	if err := v.LoadSchemas(); err != nil {
		return fmt.Errorf("error loading schemas: %w", err)
	}

	issues, err := v.ValidateArtifact(artifact)
	if err != nil {
		return fmt.Errorf("error validating artifact: %w", err)
	}
	ctxIssues, err := v.ValidateContext(ctx)
	if err != nil {
		return fmt.Errorf("error validating context: %w", err)
	}
	issues = append(issues, ctxIssues...)

	var failed bool
	for _, issue := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s (%s)\n", artifactPath, issue.Message, issue.Severity)
		if issue.Severity == "error" {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("schema validation failed")
	}
	return nil
}
