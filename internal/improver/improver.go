// Package improver supplies Improver implementations for the loop. The
// engine treats improvement as opaque; this package provides the one
// usable from the command line, which shells out to an external
// program speaking JSON on stdin/stdout.
package improver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dotcommander/qloop/internal/loop"
	"github.com/dotcommander/qloop/internal/scoring"
	"github.com/dotcommander/qloop/internal/types"
)

// request is the JSON document written to the external command's stdin.
type request struct {
	Artifact types.Artifact `json:"artifact"`
	Context  loop.Context   `json:"context"`
	Prompt   string         `json:"prompt"`
}

// Command builds an Improver that runs an external program. The program
// receives the artifact, loop context, and a rendered repair prompt as
// JSON on stdin and must print the improved artifact as JSON on stdout.
// A non-zero exit or unparseable output fails the improvement.
func Command(name string, args ...string) loop.Improver {
	return CommandWithTimeout(name, 0, args...)
}

// CommandWithTimeout is Command with a per-call wall-clock limit.
// Zero means no limit.
func CommandWithTimeout(name string, timeout time.Duration, args ...string) loop.Improver {
	return func(artifact types.Artifact, lc loop.Context) (types.Artifact, error) {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		input, err := json.Marshal(request{
			Artifact: artifact,
			Context:  lc,
			Prompt:   BuildRepairPrompt(lc),
		})
		if err != nil {
			return nil, fmt.Errorf("encoding improver request: %w", err)
		}

		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdin = bytes.NewReader(input)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return nil, fmt.Errorf("improver command failed: %w: %s", err, msg)
			}
			return nil, fmt.Errorf("improver command failed: %w", err)
		}

		var improved types.Artifact
		if err := json.Unmarshal(stdout.Bytes(), &improved); err != nil {
			return nil, fmt.Errorf("decoding improver output: %w", err)
		}
		if improved == nil {
			return nil, fmt.Errorf("improver produced no artifact")
		}
		return improved, nil
	}
}

// BuildRepairPrompt renders the loop context into instructions for an
// improver that consumes natural language.
func BuildRepairPrompt(lc loop.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The previous output scored %.1f/100; the target is %.1f.\n",
		lc.CurrentScore, lc.TargetScore)
	fmt.Fprintf(&b, "Iteration %d of %d (%d remaining).\n",
		lc.Iteration+1, lc.MaxIterations, lc.RemainingIterations)

	if len(lc.ImprovementsNeeded) > 0 {
		b.WriteString("\nAddress these issues, most important first:\n")
		b.WriteString(scoring.FormatImprovements(lc.ImprovementsNeeded))
	}

	b.WriteString("\nApply fixes directly and include execution evidence ")
	b.WriteString("(files changed, commands run, test results) in the revised output.\n")
	return b.String()
}
