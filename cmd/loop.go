package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/qloop/internal/config"
	"github.com/dotcommander/qloop/internal/improver"
	"github.com/dotcommander/qloop/internal/loop"
	"github.com/dotcommander/qloop/internal/outputters"
	"github.com/dotcommander/qloop/internal/scoring"
)

var (
	loopImproverCmd    string
	loopContextPath    string
	loopMaxIterations  int
	loopMinImprovement float64
	loopTimeout        float64
	loopSignals        bool
)

var loopCmd = &cobra.Command{
	Use:   "loop <artifact>",
	Short: "Run the improvement loop until the artifact passes or a stop rule fires",
	Long: `Evaluates the artifact, and while it stays below the quality gate, hands it
to the improver command together with the assessment and a repair prompt,
then re-evaluates the improved artifact. The loop stops on a passing score,
the iteration ceiling, insufficient improvement, stagnation, oscillation,
timeout, or an improver error.

The improver receives {"artifact", "context", "prompt"} as JSON on stdin
and must print the improved artifact as JSON on stdout.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runLoop(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitFunc(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(loopCmd)

	loopCmd.Flags().StringVarP(&loopImproverCmd, "improver", "i", "", "Improver command (whitespace-separated arguments)")
	loopCmd.Flags().StringVarP(&loopContextPath, "context", "c", "", "Context file (JSON or YAML)")
	loopCmd.Flags().IntVarP(&loopMaxIterations, "max-iterations", "n", loop.DefaultMaxIterations, "Maximum improvement iterations")
	loopCmd.Flags().Float64VarP(&loopMinImprovement, "min-improvement", "m", loop.DefaultMinImprovement, "Minimum score gain to keep iterating")
	loopCmd.Flags().Float64VarP(&loopTimeout, "timeout", "T", 0, "Wall-clock budget in seconds (0 = unlimited)")
	loopCmd.Flags().BoolVarP(&loopSignals, "signals", "s", true, "Ground scores against discovered tool signals")
}

func runLoop(cmd *cobra.Command, artifactPath string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	improverCommand := loopImproverCmd
	if improverCommand == "" {
		improverCommand = cfg.Loop.Improver
	}
	if improverCommand == "" {
		return fmt.Errorf("no improver command: set --improver or loop.improver in config")
	}
	fields := strings.Fields(improverCommand)

	maxIterations := loopMaxIterations
	if !cmd.Flags().Changed("max-iterations") && cfg.Loop.MaxIterations > 0 {
		maxIterations = cfg.Loop.MaxIterations
	}
	minImprovement := loopMinImprovement
	if !cmd.Flags().Changed("min-improvement") {
		minImprovement = cfg.Loop.MinImprovement
	}
	timeout := loopTimeout
	if !cmd.Flags().Changed("timeout") && cfg.Loop.TimeoutSeconds > 0 {
		timeout = cfg.Loop.TimeoutSeconds
	}

	artifact, ctx, err := loadInputs(cfg, artifactPath, loopContextPath)
	if err != nil {
		return err
	}

	scorer := scoring.NewScorer(cfg.ScorerOptions()...)

	var improve loop.Improver
	if timeout > 0 {
		improve = improver.CommandWithTimeout(fields[0],
			time.Duration(timeout*float64(time.Second)), fields[1:]...)
	} else {
		improve = improver.Command(fields[0], fields[1:]...)
	}

	opts := []loop.ControllerOption{
		loop.WithMaxIterations(maxIterations),
		loop.WithMinImprovement(minImprovement),
		loop.WithTimeout(timeout),
	}
	if loopSignals {
		opts = append(opts, loop.WithSignalGrounding())
	}
	if cfg.Verbose {
		opts = append(opts, loop.WithLoopLogger(func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}))
	}

	controller := loop.NewController(scorer, improve, opts...)
	result := controller.Run(artifact, ctx)

	if cfg.History.File != "" && result.Assessment != nil {
		if err := appendHistory(cfg.History.File, result.Assessment); err != nil && !cfg.Quiet {
			fmt.Fprintf(os.Stderr, "Warning: could not record history: %v\n", err)
		}
	}

	outputter := outputters.NewOutputter(cfg)
	if err := outputter.FormatLoopResult(result); err != nil {
		return fmt.Errorf("error formatting output: %w", err)
	}

	if result.Err != nil {
		return result.Err
	}
	if result.Assessment == nil || !result.Assessment.Passed {
		exitFunc(1)
	}
	return nil
}
