package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sdejongh/keepsync/internal/platform"
	"github.com/sdejongh/keepsync/pkg/config"
	"github.com/sdejongh/keepsync/pkg/models"
)

// validatePaths checks that exactly two usable paths were given. Whether
// they must exist depends on the configuration, see checkPathsExist.
func validatePaths(cmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		return errors.New("at least 2 paths are required")
	}
	if len(args) > 2 {
		return errors.New("synchronizing more than 2 paths is not supported")
	}

	var errs []error
	for _, p := range args {
		if err := platform.ValidatePath(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkPathsExist rejects missing paths unless createMissing is set; the
// engine then decides whether the other root can seed it.
func checkPathsExist(paths []string, createMissing bool) error {
	if createMissing {
		return nil
	}

	var errs []error
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("path does not exist: '%s'", p))
		}
	}
	return errors.Join(errs...)
}

// loadConfig loads configuration from file or returns default
func loadConfig() (*config.Config, error) {
	if globalFlags.ConfigFile != "" {
		return config.LoadFromFile(globalFlags.ConfigFile)
	}
	return config.LoadDefault()
}

// applyFlagsToConfig overrides config values with the flags that were set
// on the command line
func applyFlagsToConfig(cfg *config.Config, f *SyncFlags, flags *pflag.FlagSet) error {
	changed := func(name string) bool {
		fl := flags.Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("create-missing") {
		cfg.Sync.CreateMissingRoot = f.CreateMissing
	}
	if changed("fail-fast") {
		if f.FailFast {
			cfg.Sync.ErrorPolicy = models.PolicyFailFast
		} else {
			cfg.Sync.ErrorPolicy = models.PolicyContinue
		}
	}
	if changed("verify") {
		cfg.Sync.Verify = f.Verify
	}
	if changed("atomic-unit") {
		cfg.Sync.AtomicUnits = f.AtomicUnits
	}

	// Parallel workers (default: 5)
	if f.Parallel > 0 {
		cfg.Performance.MaxWorkers = f.Parallel
	} else if cfg.Performance.MaxWorkers == 0 {
		cfg.Performance.MaxWorkers = 5
	}

	if f.Bandwidth != "" {
		limit, err := config.ParseByteSize(f.Bandwidth)
		if err != nil {
			return fmt.Errorf("invalid bandwidth limit: %w", err)
		}
		cfg.Performance.BandwidthLimit = limit
	}

	// Exclude patterns add to the configured ones
	if len(f.Exclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, f.Exclude...)
	}

	if changed("output") {
		cfg.Output.Format = f.Output
	}

	if f.LogFile != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.File = f.LogFile
	}
	if changed("log-format") {
		cfg.Logging.Format = f.LogFormat
	}
	if changed("log-level") {
		cfg.Logging.Level = f.LogLevel
	}

	// Quiet and verbose both replace the progress bar with plain lines
	if globalFlags.Quiet {
		cfg.Output.Progress = false
		cfg.Output.Quiet = true
	}
	if globalFlags.Verbose {
		cfg.Output.Progress = false
	}

	return cfg.Validate()
}

// createSyncOperation creates a sync operation from configuration
func createSyncOperation(cfg *config.Config, pathA, pathB string, dryRun bool) (*models.SyncOperation, error) {
	operation := &models.SyncOperation{
		ID:        uuid.New().String(),
		PathA:     pathA,
		PathB:     pathB,
		DryRun:    dryRun,
		CreatedAt: time.Now(),
	}
	cfg.Apply(operation)

	if err := operation.Validate(); err != nil {
		return nil, err
	}

	return operation, nil
}
