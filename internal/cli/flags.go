package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// GlobalFlags holds global flag values
type GlobalFlags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// AddGlobalFlags adds global flags to the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&globalFlags.ConfigFile,
		"config",
		"",
		"config file (default is $HOME/.config/keepsync/config.yaml)",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Verbose,
		"verbose",
		"v",
		false,
		"verbose output",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Quiet,
		"quiet",
		"q",
		false,
		"suppress non-error output",
	)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() *GlobalFlags {
	return &globalFlags
}

// SyncFlags holds the flags shared by sync and compare
type SyncFlags struct {
	DryRun        bool
	CreateMissing bool
	Parallel      int
	Bandwidth     string
	Exclude       []string
	AtomicUnits   []string
	FailFast      bool
	Verify        bool
	Output        string
	Report        string
	ReportFormat  string
	// Logging flags
	LogFile   string
	LogFormat string
	LogLevel  string
}

// addSelectionFlags registers the flags that decide what a run looks at
func addSelectionFlags(fs *pflag.FlagSet, f *SyncFlags) {
	fs.BoolVar(&f.CreateMissing, "create-missing", false, "create a missing root from the other one")
	fs.StringSliceVar(&f.Exclude, "exclude", nil, "glob patterns to exclude (prefix with ! to re-include)")
	fs.StringSliceVar(&f.AtomicUnits, "atomic-unit", nil, "directory suffix synchronized as a single unit (default .app)")
	fs.IntVarP(&f.Parallel, "parallel", "p", 0, "number of parallel workers (default: 5)")
	fs.StringVarP(&f.Output, "output", "o", "human", "output format: human, json")
	fs.StringVar(&f.Report, "report", "", "write the per-entry report to file")
	fs.StringVar(&f.ReportFormat, "report-format", "human", "report format: human, json")
}

// addTransferFlags registers the flags that only matter when files move
func addTransferFlags(fs *pflag.FlagSet, f *SyncFlags) {
	fs.BoolVar(&f.DryRun, "dry-run", false, "show what would change without changing anything")
	fs.StringVarP(&f.Bandwidth, "bandwidth", "b", "", "bandwidth limit per second (e.g., \"10MB\", \"1GiB\")")
	fs.BoolVar(&f.FailFast, "fail-fast", false, "stop scheduling entries after the first error")
	fs.BoolVar(&f.Verify, "verify", false, "hash both sides after each copy")
}

// addLoggingFlags registers the log file flags
func addLoggingFlags(fs *pflag.FlagSet, f *SyncFlags) {
	fs.StringVar(&f.LogFile, "log-file", "", "write logs to file (enables logging)")
	fs.StringVar(&f.LogFormat, "log-format", "text", "log format: text, json")
	fs.StringVar(&f.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
}
