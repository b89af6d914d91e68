package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/output"
)

// NewCompareCommand creates the compare command
func NewCompareCommand() *cobra.Command {
	f := &SyncFlags{}

	cmd := &cobra.Command{
		Use:   "compare <path-a> <path-b>",
		Short: "Compare folders without syncing (dry-run)",
		Long: `Compare two folders and list what a sync would do to each entry
without performing any file operations. This is equivalent to sync --dry-run.`,
		Args: validatePaths,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args, f)
		},
	}

	addSelectionFlags(cmd.Flags(), f)
	addLoggingFlags(cmd.Flags(), f)

	return cmd
}

func runCompare(cmd *cobra.Command, args []string, f *SyncFlags) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	// Force dry-run mode for compare command
	cfg, operation, err := prepare(cmd, args, f, true)
	if err != nil {
		return err
	}

	logger, err := createLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	var formatter output.Formatter
	if cfg.Output.Format == "json" {
		formatter = output.NewJSONFormatter()
	}

	report, runErr := runOperation(ctx, cmd, operation, formatter, logger)
	if report == nil {
		return fmt.Errorf("comparison failed: %w", runErr)
	}

	if formatter == nil {
		printPlan(cmd.OutOrStdout(), report)
	}

	if f.Report != "" {
		if err := output.WriteReport(report, f.Report, f.ReportFormat); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	return exitStatus(report, runErr)
}

// printPlan lists the entries a sync would change, one per line
func printPlan(w io.Writer, report *models.SyncReport) {
	fmt.Fprintf(w, "Comparing %s <-> %s\n\n", report.PathA, report.PathB)

	changes := 0
	for _, o := range report.Outcomes {
		switch {
		case !o.Result.Ok:
			fmt.Fprintf(w, "  %-20s %s: %s\n", "error", o.RelativePath, o.Result.Message)
		case o.Decision.Mutates():
			changes++
			fmt.Fprintf(w, "  %-20s %s\n", output.FormatDecision(o.Decision), o.RelativePath)
		}
	}

	if changes == 0 && !report.HasErrors() {
		fmt.Fprintln(w, "  Already in sync")
	}
	fmt.Fprintf(w, "\n%d entries would change, %d conflicts, %d errors\n",
		changes, report.Stats.Conflicts.Load(), report.Stats.EntriesErrored.Load())
}
