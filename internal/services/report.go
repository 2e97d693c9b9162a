package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Sheet1"

// Report status values.
const (
	reportRetained   = "retained"
	reportMismatch   = "mismatch"
	reportBelowDepth = "below_depth"
	reportUncounted  = "count_failed"
)

// WriteCountReport saves a one-sheet workbook with a row per sample:
// sample ID, forward count, reverse count, reconciled count and status.
func WriteCountReport(path string, result *Reconciliation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	header := []interface{}{"sample_id", "forward_reads", "reverse_reads", "reads", "status"}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for i, row := range reportRows(result) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write report row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report %s: %w", path, err)
	}
	return nil
}

func reportRows(result *Reconciliation) [][]interface{} {
	var rows [][]interface{}
	for _, rec := range result.Records {
		status := reportRetained
		if rec.Count < result.MinDepth {
			status = reportBelowDepth
		}
		rows = append(rows, []interface{}{rec.SampleID, rec.ForwardCount, rec.ReverseCount, rec.Count, status})
	}
	for _, m := range result.Mismatches {
		var fwd, rev interface{}
		if len(m.Counts) > 0 {
			fwd = m.Counts[0]
		}
		if len(m.Counts) > 1 {
			rev = m.Counts[1]
		}
		rows = append(rows, []interface{}{m.SampleID, fwd, rev, nil, reportMismatch})
	}
	for _, id := range result.Uncounted {
		rows = append(rows, []interface{}{id, nil, nil, nil, reportUncounted})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i][0].(string) < rows[j][0].(string)
	})
	return rows
}
