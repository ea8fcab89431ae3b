package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dotcommander/qloop/internal/config"
	"github.com/dotcommander/qloop/internal/outputters"
	"github.com/dotcommander/qloop/internal/scoring"
)

const defaultHistoryFile = ".qloop-history.json"

var summaryHistoryFile string

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show aggregate statistics over recorded assessments",
	Long: `Reads the assessment history file written by score and loop runs and
reports the assessment count, average, minimum and maximum score, and
the pass rate.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSummary(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitFunc(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringVar(&summaryHistoryFile, "history", "", "Assessment history file")
}

func runSummary() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	file := summaryHistoryFile
	if file == "" {
		file = cfg.History.File
	}
	if file == "" {
		file = defaultHistoryFile
	}

	assessments, err := readHistory(file)
	if err != nil {
		return err
	}

	outputter := outputters.NewOutputter(cfg)
	return outputter.FormatSummary(summarize(assessments))
}

// summarize computes aggregate statistics over recorded assessments.
func summarize(assessments []*scoring.Assessment) scoring.MetricsSummary {
	if len(assessments) == 0 {
		return scoring.MetricsSummary{}
	}

	summary := scoring.MetricsSummary{
		TotalAssessments: len(assessments),
		MinScore:         assessments[0].OverallScore,
		MaxScore:         assessments[0].OverallScore,
	}
	var sum float64
	passed := 0
	for _, a := range assessments {
		sum += a.OverallScore
		if a.OverallScore < summary.MinScore {
			summary.MinScore = a.OverallScore
		}
		if a.OverallScore > summary.MaxScore {
			summary.MaxScore = a.OverallScore
		}
		if a.Passed {
			passed++
		}
	}
	summary.AverageScore = sum / float64(len(assessments))
	summary.PassRate = float64(passed) / float64(len(assessments))
	return summary
}

// readHistory loads the assessment history file. A missing file is an
// empty history, not an error.
func readHistory(path string) ([]*scoring.Assessment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading history file %s: %w", path, err)
	}

	var assessments []*scoring.Assessment
	if err := json.Unmarshal(data, &assessments); err != nil {
		return nil, fmt.Errorf("error parsing history file %s: %w", path, err)
	}
	return assessments, nil
}

// appendHistory adds an assessment to the history file, creating it if
// needed.
func appendHistory(path string, a *scoring.Assessment) error {
	assessments, err := readHistory(path)
	if err != nil {
		return err
	}
	assessments = append(assessments, a)

	data, err := json.MarshalIndent(assessments, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding history: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating history directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
