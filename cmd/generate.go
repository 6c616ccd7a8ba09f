// File: cmd/generate.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/internal/config"
	"github.com/xkilldash9x/leoforge/internal/observability"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// generateOptions carries the flag overrides for a generate run.
type generateOptions struct {
	ProjectType    string
	Constraints    []string
	MaxIterations  int
	BuildThreshold float64
	AbandonFloor   float64
	OutputDir      string
	JSON           bool
}

// apply writes the flags that were set onto cfg.
func (o generateOptions) apply(cmd *cobra.Command, cfg config.Interface) {
	if cmd.Flags().Changed("max-iterations") {
		cfg.SetRefinementMaxIterations(o.MaxIterations)
	}
	if cmd.Flags().Changed("build-threshold") {
		cfg.SetRefinementBuildThreshold(o.BuildThreshold)
	}
	if cmd.Flags().Changed("abandon-floor") {
		cfg.SetRefinementAbandonFloor(o.AbandonFloor)
	}
	if o.OutputDir != "" {
		cfg.SetWorkspaceOutputDir(o.OutputDir)
	}
}

func newGenerateCmd(factory componentsFactory) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate [request...]",
		Short: "Generate a Leo program from a natural-language request",
		Example: `  leoforge generate "a fungible token with mint and transfer"
  leoforge generate --type nft --constraint "max supply 100" "an NFT collection"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)

			query := refinement.Query{
				Text:        strings.TrimSpace(strings.Join(args, " ")),
				Category:    opts.ProjectType,
				Constraints: opts.Constraints,
			}
			return runGenerate(ctx, observability.GetLogger(), cfg, query, opts.JSON, cmd.OutOrStdout(), factory)
		},
	}

	cmd.Flags().StringVarP(&opts.ProjectType, "type", "t", "", "Project type hint (token, nft, voting, ...)")
	cmd.Flags().StringArrayVar(&opts.Constraints, "constraint", nil, "Additional constraint for the design (repeatable)")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", refinement.DefaultMaxIterations, "Maximum refinement rounds (overrides config)")
	cmd.Flags().Float64Var(&opts.BuildThreshold, "build-threshold", refinement.DefaultBuildThreshold, "Minimum score before compiling (overrides config)")
	cmd.Flags().Float64Var(&opts.AbandonFloor, "abandon-floor", refinement.DefaultAbandonFloor, "Score below which the run is abandoned (overrides config)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "Directory for generated projects (overrides config)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the full run result as JSON")
	return cmd
}

// runGenerate contains the core, testable logic of the generate command. A
// run that ends without a compiling program is reported as an error so the
// process exits non-zero.
func runGenerate(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	query refinement.Query,
	asJSON bool,
	out io.Writer,
	factory componentsFactory,
) error {
	if query.Text == "" {
		return fmt.Errorf("the request text is empty")
	}

	comps, err := factory(ctx, cfg, out, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	result := comps.Runner.Run(ctx, query)
	logPath := comps.Finish(ctx, query, result)
	comps.Shutdown()

	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize run result: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		printSummary(out, result, logPath)
	}

	switch {
	case result.Success:
		return nil
	case result.StopReason == refinement.StopCancelled:
		return context.Canceled
	default:
		return fmt.Errorf("run %s ended without a compiling program (%s)", result.RunID, result.StopReason)
	}
}

func printSummary(out io.Writer, result refinement.RunResult, logPath string) {
	fmt.Fprintln(out)
	if result.Success {
		fmt.Fprintf(out, "Success: %s compiled after %d iteration(s).\n", result.ProjectName, result.TotalIterations)
	} else {
		fmt.Fprintf(out, "Stopped (%s) after %d iteration(s).\n", result.StopReason, result.TotalIterations)
		if result.ErrorMessage != "" {
			fmt.Fprintf(out, "Reason: %s\n", result.ErrorMessage)
		}
	}
	if n := len(result.Iterations); n > 0 {
		fmt.Fprintf(out, "Final score: %.1f/10\n", result.Iterations[n-1].Evaluation.Score)
	}
	if result.WorkspacePath != "" {
		fmt.Fprintf(out, "Workspace: %s\n", result.WorkspacePath)
	}
	fmt.Fprintf(out, "Duration: %s\n", result.TotalDuration.Round(time.Millisecond))
	if logPath != "" {
		fmt.Fprintf(out, "Run log: %s\n", logPath)
	}
	fmt.Fprintf(out, "Run ID: %s\n", result.RunID)
}
