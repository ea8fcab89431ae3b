package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dotcommander/qloop/internal/config"
	"github.com/dotcommander/qloop/internal/discovery"
	"github.com/dotcommander/qloop/internal/signal"
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Show discovered tool reports and the signal adjustment they imply",
	Long: `Scans the --reports directory for tool report files (test, lint,
type-check, build, security), assembles them into an evaluation context,
and shows the resulting signal analysis: hard failures that would cap a
score, and clean-run bonuses that would raise one.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSignals(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitFunc(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}

// signalStyles holds the styles used by the signals report.
type signalStyles struct {
	header lipgloss.Style
	good   lipgloss.Style
	bad    lipgloss.Style
	dim    lipgloss.Style
}

func newSignalStyles() signalStyles {
	return signalStyles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		good:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func runSignals() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	root := cfg.Reports
	if root == "" {
		root = "."
	}

	rd := discovery.NewReportDiscovery(root)
	reports, err := rd.DiscoverReports()
	if err != nil {
		return fmt.Errorf("error discovering reports: %w", err)
	}

	styles := newSignalStyles()

	fmt.Println(styles.header.Render("Discovered reports"))
	if len(reports) == 0 {
		fmt.Println(styles.dim.Render("  (none)"))
	}
	for _, report := range reports {
		fmt.Printf("  %-10s %s\n", report.Kind, report.RelPath)
		for _, issue := range report.Issues {
			fmt.Printf("    %s\n", styles.bad.Render(issue.Message))
		}
	}

	ctx := discovery.BuildContext(reports)
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println()
	fmt.Println(styles.header.Render("Context keys"))
	if len(keys) == 0 {
		fmt.Println(styles.dim.Render("  (none)"))
	}
	for _, k := range keys {
		fmt.Printf("  %s\n", k)
	}

	signals := signal.FromContext(ctx)

	fmt.Println()
	fmt.Println(styles.header.Render("Signal analysis"))
	if signals.HasHardFailures() {
		fmt.Printf("  %s capped at %.0f\n",
			styles.bad.Render("hard failures:"), signals.HardFailureCap())
		_, adj := signals.Apply(100)
		for _, reason := range adj.HardFailures {
			fmt.Printf("    %s\n", styles.bad.Render(reason))
		}
	} else {
		_, adj := signals.Apply(0)
		fmt.Printf("  %s +%.0f\n", styles.good.Render("bonus:"), adj.Bonus)
		for _, reason := range adj.BonusReasons {
			fmt.Printf("    %s\n", styles.good.Render(reason))
		}
		if adj.Bonus == 0 {
			fmt.Println(styles.dim.Render("    no bonus earned"))
		}
	}

	return nil
}
