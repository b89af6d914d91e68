package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sdejongh/keepsync/pkg/config"
	"github.com/sdejongh/keepsync/pkg/logging"
	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/output"
	"github.com/sdejongh/keepsync/pkg/sync"
)

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	f := &SyncFlags{}

	cmd := &cobra.Command{
		Use:   "sync <path-a> <path-b>",
		Short: "Synchronize two folders in both directions",
		Long: `Synchronize two folders so that both end up with the newest version of
every entry. Entries missing on one side are copied over, and when both sides
have an entry the most recently modified one wins. Nothing is ever deleted.`,
		Args: validatePaths,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, f)
		},
	}

	addSelectionFlags(cmd.Flags(), f)
	addTransferFlags(cmd.Flags(), f)
	addLoggingFlags(cmd.Flags(), f)

	return cmd
}

func runSync(cmd *cobra.Command, args []string, f *SyncFlags) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	cfg, operation, err := prepare(cmd, args, f, f.DryRun)
	if err != nil {
		return err
	}

	logger, err := createLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	formatter, err := createFormatter(cfg)
	if err != nil {
		return err
	}

	report, runErr := runOperation(ctx, cmd, operation, formatter, logger)
	if report == nil {
		return fmt.Errorf("sync failed: %w", runErr)
	}

	if f.Report != "" {
		if err := output.WriteReport(report, f.Report, f.ReportFormat); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if cfg.Output.Quiet {
		printErrors(cmd.ErrOrStderr(), report)
	}

	return exitStatus(report, runErr)
}

// signalContext cancels the command context on SIGINT or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// prepare loads the configuration, applies the flags and builds the operation
func prepare(cmd *cobra.Command, args []string, f *SyncFlags, dryRun bool) (*config.Config, *models.SyncOperation, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyFlagsToConfig(cfg, f, cmd.Flags()); err != nil {
		return nil, nil, err
	}
	if err := checkPathsExist(args, cfg.Sync.CreateMissingRoot); err != nil {
		return nil, nil, err
	}

	operation, err := createSyncOperation(cfg, args[0], args[1], dryRun)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sync operation: %w", err)
	}
	return cfg, operation, nil
}

// runOperation hands the operation to the engine
func runOperation(
	ctx context.Context,
	cmd *cobra.Command,
	operation *models.SyncOperation,
	formatter output.Formatter,
	logger logging.Logger,
) (*models.SyncReport, error) {
	opts := []sync.Option{
		sync.WithOperation(operation),
		sync.WithLogger(logger),
	}
	if formatter != nil {
		opts = append(opts, sync.WithFormatter(formatter, cmd.OutOrStdout()))
	}
	return sync.Synchronize(ctx, operation.PathA, operation.PathB, opts...)
}

// exitStatus turns the final report into the process exit code
func exitStatus(report *models.SyncReport, runErr error) error {
	code := report.Status.ExitCode()
	if code == 0 {
		return nil
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return &ExitError{Code: code, Err: runErr}
}

// createFormatter picks the output formatter. Quiet human output has none.
func createFormatter(cfg *config.Config) (output.Formatter, error) {
	colors, err := output.ParseColorMode(cfg.Output.Color)
	if err != nil {
		return nil, err
	}

	switch {
	case cfg.Output.Format == "json":
		return output.NewJSONFormatter(), nil
	case cfg.Output.Quiet:
		return nil, nil
	case cfg.Output.Progress:
		formatter := output.NewProgressFormatter()
		formatter.SetColorMode(colors)
		return formatter, nil
	default:
		formatter := output.NewHumanFormatter()
		formatter.SetColorMode(colors)
		formatter.SetVerbose(globalFlags.Verbose)
		return formatter, nil
	}
}

// createLogger creates a logger based on configuration. Verbose runs without
// a log file log to stderr.
func createLogger(cfg *config.Config, stderr io.Writer) (logging.Logger, error) {
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	level := logging.ParseLevel(cfg.Logging.Level)

	switch {
	case cfg.Logging.Enabled && cfg.Logging.File != "":
		return logging.NewFileLogger(logging.FileLoggerConfig{
			Path:       cfg.Logging.File,
			Format:     format,
			Level:      level,
			MaxSize:    int64(cfg.Logging.MaxSize),
			MaxBackups: cfg.Logging.MaxBackups,
		})
	case cfg.Logging.Enabled || globalFlags.Verbose:
		return logging.NewStreamLogger(stderr, format, level), nil
	default:
		return logging.NewNullLogger(), nil
	}
}

// printErrors lists failed entries, for quiet runs that print nothing else
func printErrors(w io.Writer, report *models.SyncReport) {
	for _, o := range report.Errors() {
		fmt.Fprintf(w, "error: %s: %s\n", o.RelativePath, o.Result.Message)
	}
}
