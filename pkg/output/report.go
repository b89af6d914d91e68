package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sdejongh/keepsync/pkg/models"
)

// WriteReport writes the per-entry outcome report to a file.
// Format can be "human" or "json".
func WriteReport(report *models.SyncReport, path string, format string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	switch format {
	case "json":
		err = writeReportJSON(report, file)
	default: // "human"
		err = writeReportHuman(report, file)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

// reportSection groups outcomes under one heading
type reportSection struct {
	label string
	match func(o models.Outcome) bool
}

var reportSections = []reportSection{
	{"Errors", func(o models.Outcome) bool { return !o.Result.Ok }},
	{"Conflicts", func(o models.Outcome) bool { return o.Result.Ok && o.Decision.Action == models.ActionConflict }},
	{"Copied a -> b", func(o models.Outcome) bool { return o.Result.Ok && o.Decision.Action == models.ActionCopyAToB }},
	{"Copied b -> a", func(o models.Outcome) bool { return o.Result.Ok && o.Decision.Action == models.ActionCopyBToA }},
	{"Skipped", func(o models.Outcome) bool {
		return o.Result.Ok && o.Decision.Action == models.ActionSkip && o.Decision.Reason != models.ReasonIdenticalMtime
	}},
}

// writeReportHuman writes outcomes in human-readable format
func writeReportHuman(report *models.SyncReport, w io.Writer) error {
	fmt.Fprintf(w, "Sync Report\n")
	fmt.Fprintf(w, "===========\n\n")
	fmt.Fprintf(w, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "Operation: %s\n", report.OperationID)
	fmt.Fprintf(w, "Side A: %s\n", report.PathA)
	fmt.Fprintf(w, "Side B: %s\n", report.PathB)
	fmt.Fprintf(w, "Dry Run: %v\n", report.DryRun)
	fmt.Fprintf(w, "Status: %s\n\n", report.Status)

	fmt.Fprintf(w, "Entries: %d\n\n", len(report.Outcomes))

	for _, section := range reportSections {
		var matched []models.Outcome
		for _, o := range report.Outcomes {
			if section.match(o) {
				matched = append(matched, o)
			}
		}
		if len(matched) == 0 {
			continue
		}

		label := fmt.Sprintf("%s (%d)", section.label, len(matched))
		fmt.Fprintf(w, "%s\n", label)
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", len(label)))

		for _, o := range matched {
			fmt.Fprintf(w, "  %s\n", o.RelativePath)
			fmt.Fprintf(w, "    Decision: %s\n", o.Decision)
			if o.BytesCopied > 0 {
				fmt.Fprintf(w, "    Copied:   %s\n", formatBytes(o.BytesCopied))
			}
			if !o.Result.Ok {
				fmt.Fprintf(w, "    Error:    [%s] %s\n", o.Result.Kind, o.Result.Message)
			}
		}
		fmt.Fprintf(w, "\n")
	}

	return nil
}

// writeReportJSON writes every outcome in JSON format
func writeReportJSON(report *models.SyncReport, w io.Writer) error {
	output := struct {
		Generated string `json:"generated"`
		JSONReportData
	}{
		Generated:      time.Now().Format(time.RFC3339),
		JSONReportData: NewJSONReport(report, true),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
