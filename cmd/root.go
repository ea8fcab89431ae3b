package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dotcommander/qloop/internal/config"
	"github.com/dotcommander/qloop/internal/discovery"
	"github.com/dotcommander/qloop/internal/types"
)

// Version is set at build time via -ldflags
var Version = "1.0.0"

var (
	quiet        bool
	verbose      bool
	outputFormat string
	outputFile   string
	reportsDir   string
)

// exitFunc allows tests to intercept os.Exit
var exitFunc = os.Exit

var rootCmd = &cobra.Command{
	Use:     "qloop",
	Version: Version,
	Short:   "Quality scoring and improvement loop for task artifacts",
	Long: `qloop scores task execution artifacts across weighted quality dimensions,
grounds the score against deterministic tool signals (test, lint, type-check,
build and security reports), and can drive an external improver command in a
bounded improvement loop until the artifact clears the quality gate.

Artifacts and contexts are JSON or YAML documents. Tool reports are
discovered by filename pattern under the --reports directory.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitFunc(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "console", "Output format (console|json|markdown)")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output file for reports (json and markdown formats)")
	rootCmd.PersistentFlags().StringVarP(&reportsDir, "reports", "r", ".", "Directory to scan for tool report files")

	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("reports", rootCmd.PersistentFlags().Lookup("reports"))
}

func initConfig() {
	configPaths := []string{".qlooprc.json", ".qlooprc.yaml", ".qlooprc.yml"}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			viper.SetConfigFile(path)
			if err := viper.ReadInConfig(); err != nil {
				fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
				exitFunc(1)
			}
			break
		}
	}
}

// loadInputs loads the artifact and assembles the evaluation context from
// the optional context file plus discovered tool reports. Keys from the
// explicit context file win over discovered report data.
func loadInputs(cfg *config.Config, artifactPath, contextPath string) (types.Artifact, types.Context, error) {
	artifact, err := discovery.LoadArtifact(artifactPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading artifact: %w", err)
	}

	ctx := types.Context{}
	if contextPath != "" {
		ctx, err = discovery.LoadContext(contextPath)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading context: %w", err)
		}
	}

	if cfg.Reports != "" {
		rd := discovery.NewReportDiscovery(cfg.Reports)
		reports, err := rd.DiscoverReports()
		if err != nil {
			return nil, nil, fmt.Errorf("error discovering reports: %w", err)
		}
		for key, value := range discovery.BuildContext(reports) {
			if _, ok := ctx[key]; !ok {
				ctx[key] = value
			}
		}
	}

	return artifact, ctx, nil
}
