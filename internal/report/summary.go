package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"

	"github.com/mescon/Archivarr/internal/domain"
)

// SummaryTable renders the end-of-run counts.
func SummaryTable(r *domain.RunReport) *uitable.Table {
	s := r.Summary

	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true

	table.AddRow("", "")
	table.AddRow("  - Run:", s.RunID)
	table.AddRow("  - Command:", r.Command)
	table.AddRow("  - Mode:", string(s.Mode))
	table.AddRow("  - Duration:", r.Duration().Round(time.Millisecond).String())
	table.AddRow("  - Found:", s.Found)

	if r.Command == domain.CommandReconcile {
		for _, action := range domain.Actions {
			table.AddRow(fmt.Sprintf("    %s:", action), s.ByAction[action])
		}
		table.AddRow("  - Fixed:", s.Fixed)
		table.AddRow("  - Reset:", s.Reset)
	}
	if r.Command == domain.CommandMigrate {
		table.AddRow("  - Migrated:", s.Migrated)
		table.AddRow("  - Data copied:", humanize.Bytes(uint64(r.BytesCopied())))
	}

	table.AddRow("  - Skipped:", s.Skipped)
	table.AddRow("  - Errors:", s.Errors)
	table.AddRow("  - Scan errors:", s.ScanErrors)
	if len(r.FailedContainers) > 0 {
		table.AddRow("  - Failed containers:", fmt.Sprint(r.FailedContainers))
	}
	if len(r.Warnings) > 0 {
		table.AddRow("  - Warnings:", len(r.Warnings))
	}
	if !s.Mode.IsLive() {
		table.AddRow("", "")
		table.AddRow("  Dry run:", "no changes were made, re-run with --live to apply")
	}
	table.AddRow("", "")
	return table
}

// PrintSummary writes the summary table to w.
func PrintSummary(w io.Writer, r *domain.RunReport) error {
	_, err := fmt.Fprintln(w, SummaryTable(r).String())
	return err
}
