// Package cli implements the keepsync command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExitError carries a non-zero exit code back to main. Err may be nil when
// the formatter already reported what went wrong.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewRootCommand builds the keepsync command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "keepsync",
		Short: "Two-way folder synchronization",
		Long: `keepsync keeps two folders in sync in both directions. Every entry
converges on its most recently modified version, missing entries are copied
across, and application bundles are replaced as a whole.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(NewSyncCommand())
	rootCmd.AddCommand(NewCompareCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
