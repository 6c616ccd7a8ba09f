// File: cmd/batch.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/internal/batch"
	"github.com/xkilldash9x/leoforge/internal/config"
	"github.com/xkilldash9x/leoforge/internal/observability"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

func newBatchCmd(factory componentsFactory) *cobra.Command {
	var concurrency int
	var failFast bool

	cmd := &cobra.Command{
		Use:   "batch <jobs.yaml>",
		Short: "Run several generation requests from a YAML file",
		Long: `Runs every job listed in the file through the refinement loop, several at a
time. Each job gets its own workspace; jobs whose designs resolve to the same
project name cannot run at the same time and the later one fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.SetBatchConcurrency(concurrency)
			}
			if !cmd.Flags().Changed("fail-fast") {
				failFast = cfg.Batch().FailFast
			}

			jobs, err := batch.LoadJobs(args[0])
			if err != nil {
				return err
			}
			return runBatch(ctx, observability.GetLogger(), cfg, jobs, failFast, cmd.OutOrStdout(), factory)
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Number of jobs run at once (overrides config)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop starting new jobs after the first failure")
	return cmd
}

// runBatch contains the core, testable logic of the batch command.
func runBatch(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	jobs []batch.Job,
	failFast bool,
	out io.Writer,
	factory componentsFactory,
) error {
	if cfg.Batch().Concurrency <= 0 {
		return fmt.Errorf("batch concurrency must be a positive integer")
	}

	comps, err := factory(ctx, cfg, out, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	runner := batch.NewRunner(logger, comps.Runner, cfg.Batch().Concurrency,
		batch.WithFailFast(failFast),
		batch.WithResultFunc(func(job batch.Job, result refinement.RunResult) {
			comps.Finish(ctx, job.ToQuery(), result)
		}),
	)
	outcomes, runErr := runner.Run(ctx, jobs)
	comps.Shutdown()

	printBatchTable(out, outcomes)
	summary := batch.Summarize(outcomes)
	fmt.Fprintf(out, "\n%d succeeded, %d failed, %d skipped\n", summary.Succeeded, summary.Failed, summary.Skipped)

	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", summary.Failed, len(jobs))
	}
	return nil
}

func printBatchTable(out io.Writer, outcomes []batch.Outcome) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "JOB\tPROJECT\tRESULT\tITERATIONS\tWORKSPACE")
	for _, o := range outcomes {
		status := string(o.Result.StopReason)
		if o.Skipped {
			status = "skipped"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.Job.Label(), o.Result.ProjectName, status, o.Result.TotalIterations, o.Result.WorkspacePath)
	}
	_ = w.Flush()
}
