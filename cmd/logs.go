// File: cmd/logs.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/leoforge/internal/config"
	"github.com/xkilldash9x/leoforge/internal/observability"
	"github.com/xkilldash9x/leoforge/internal/runlog"
	"github.com/xkilldash9x/leoforge/internal/store"
)

func newLogsCmd() *cobra.Command {
	var (
		runID  string
		limit  int
		follow bool
		fromDB bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect past runs or follow the application log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case follow:
				return followLog(ctx, cfg.Logger().LogFile, out)
			case runID != "":
				return showRun(cfg.RunLog().Dir, runID, out)
			case fromDB:
				return listStoredRuns(ctx, cfg, limit, out)
			default:
				return listRuns(cfg.RunLog().Dir, limit, out)
			}
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Print the full log of one run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to list")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the application log file (logger.log_file)")
	cmd.Flags().BoolVar(&fromDB, "db", false, "List runs from the run history database instead of the run log directory")
	cmd.MarkFlagsMutuallyExclusive("follow", "run", "db")
	return cmd
}

func listRuns(dir string, limit int, out io.Writer) error {
	records, err := runlog.Recent(dir, limit)
	if err != nil {
		return fmt.Errorf("failed to list run logs in %s: %w", dir, err)
	}
	if len(records) == 0 {
		fmt.Fprintf(out, "No run logs found in %s\n", dir)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tPROJECT\tRESULT\tITERATIONS\tFINISHED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.RunID, r.ProjectName, r.StopReason, len(r.Iterations), r.EndTime.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func showRun(dir, runID string, out io.Writer) error {
	path, err := runlog.Find(dir, runID)
	if err != nil {
		return err
	}
	record, err := runlog.Load(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run log: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func listStoredRuns(ctx context.Context, cfg config.Interface, limit int, out io.Writer) error {
	url := cfg.Database().URL
	if url == "" {
		return fmt.Errorf("database URL is not configured (LEOFORGE_DATABASE_URL)")
	}
	st, closeStore, err := store.Open(ctx, url, observability.GetLogger())
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tPROJECT\tRESULT\tITERATIONS\tDURATION\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", r.RunID, r.ProjectName, r.StopReason, r.TotalIterations,
			r.Duration.Round(time.Millisecond), r.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

// followLog streams new lines of the application log until ctx is done.
func followLog(ctx context.Context, path string, out io.Writer) error {
	if path == "" {
		return fmt.Errorf("logger.log_file is not configured; nothing to follow")
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail application log file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				continue
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}
