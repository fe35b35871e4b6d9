package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// WriteJSON renders the summary as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteCSV renders one row per rule with the headline metrics rounded to
// two decimals. Full precision lives in the JSON rendering and the run
// store; CSV is for spreadsheets.
func WriteCSV(w io.Writer, s Summary) error {
	cw := csv.NewWriter(w)
	header := []string{"rule_id", "rule_name", "cases", "passed", "failed", "precision", "recall", "f1", "avg_iou", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rr := range s.RuleReports {
		row := []string{
			rr.Rule.ID,
			rr.Rule.Name,
			strconv.Itoa(rr.TotalCases),
			strconv.Itoa(rr.Passed),
			strconv.Itoa(rr.Failed),
			round2(rr.Metrics.Precision),
			round2(rr.Metrics.Recall),
			round2(rr.Metrics.F1),
			round2(rr.Metrics.AvgIoU),
			rr.Err,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for rule %s: %w", rr.Rule.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteText renders a compact fixed-width table for terminal output.
func WriteText(w io.Writer, s Summary) error {
	if _, err := fmt.Fprintf(w, "run %s  rules=%d cases=%d passed=%d failed=%d accuracy=%s\n",
		s.RunID, s.TotalRules, s.TotalCases, s.TotalPassed, s.TotalFailed, round2(s.OverallAccuracy)); err != nil {
		return err
	}
	for _, rr := range s.RuleReports {
		status := "done"
		if rr.Err != "" {
			status = "failed: " + rr.Err
		}
		if _, err := fmt.Fprintf(w, "  %-20s cases=%-4d passed=%-4d p=%s r=%s f1=%s iou=%s  %s\n",
			rr.Rule.ID, rr.TotalCases, rr.Passed,
			round2(rr.Metrics.Precision), round2(rr.Metrics.Recall),
			round2(rr.Metrics.F1), round2(rr.Metrics.AvgIoU), status); err != nil {
			return err
		}
		for _, fc := range rr.FailedCases {
			if _, err := fmt.Fprintf(w, "    FAIL %-30s kind=%s %s\n", fc.Case.VideoName, fc.Kind, fc.Detail); err != nil {
				return err
			}
		}
	}
	return nil
}

func round2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
