package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrel-data/visionproof/internal/report"
	"github.com/kestrel-data/visionproof/internal/rules"
	"github.com/kestrel-data/visionproof/internal/validate"
)

// RunRow is the run-level listing shape, without per-rule detail.
type RunRow struct {
	ID              string    `json:"id"`
	BatchCode       string    `json:"batch_code"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	TotalRules      int       `json:"total_rules"`
	TotalCases      int       `json:"total_cases"`
	TotalPassed     int       `json:"total_passed"`
	TotalFailed     int       `json:"total_failed"`
	OverallAccuracy float64   `json:"overall_accuracy"`
}

// SaveSummary writes a finished run and all its rule reports in one
// transaction. Verdict evidence is not persisted; the JSON report
// artifact keeps it.
func (db *DB) SaveSummary(s report.Summary) error {
	return retryOnBusy("save run "+s.RunID, func() error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin save run: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(
			`INSERT INTO runs (
				id, batch_code, started_at, finished_at,
				total_rules, total_cases, total_passed, total_failed,
				overall_accuracy, mean_f1, stddev_f1, min_f1, max_f1
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, s.BatchCode, s.StartedAt.UTC(), s.FinishedAt.UTC(),
			s.TotalRules, s.TotalCases, s.TotalPassed, s.TotalFailed,
			s.OverallAccuracy, s.Spread.MeanF1, s.Spread.StdDevF1,
			s.Spread.MinF1, s.Spread.MaxF1,
		)
		if err != nil {
			return fmt.Errorf("insert run %s: %w", s.RunID, err)
		}

		for pos, rr := range s.RuleReports {
			res, err := tx.Exec(
				`INSERT INTO rule_reports (
					run_id, position, rule_id, rule_name, sheet_ref,
					total_cases, passed, failed,
					true_positives, false_positives, false_negatives,
					precision, recall, f1, avg_iou, error, duration_ms
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				s.RunID, pos, rr.Rule.ID, rr.Rule.Name, rr.Rule.SheetRef,
				rr.TotalCases, rr.Passed, rr.Failed,
				rr.Metrics.Counts.TruePositives, rr.Metrics.Counts.FalsePositives,
				rr.Metrics.Counts.FalseNegatives,
				rr.Metrics.Precision, rr.Metrics.Recall, rr.Metrics.F1,
				rr.Metrics.AvgIoU, rr.Err, rr.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("insert rule report %s: %w", rr.Rule.ID, err)
			}
			reportID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("rule report id for %s: %w", rr.Rule.ID, err)
			}

			for _, fc := range rr.FailedCases {
				_, err := tx.Exec(
					`INSERT INTO failed_cases (rule_report_id, video_name, row_key, kind, detail)
					 VALUES (?, ?, ?, ?, ?)`,
					reportID, fc.Case.VideoName, fc.Case.RowKey, string(fc.Kind), fc.Detail,
				)
				if err != nil {
					return fmt.Errorf("insert failed case %s/%s: %w", rr.Rule.ID, fc.Case.VideoName, err)
				}
			}
		}

		return tx.Commit()
	})
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, batch_code, started_at, finished_at,
			total_rules, total_cases, total_passed, total_failed, overall_accuracy
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(
			&r.ID, &r.BatchCode, &r.StartedAt, &r.FinishedAt,
			&r.TotalRules, &r.TotalCases, &r.TotalPassed, &r.TotalFailed,
			&r.OverallAccuracy,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = fmt.Errorf("run not found")

// GetRun reloads a stored run with its rule reports and failed cases.
// Failed-case verdict evidence is not stored, so Verdict is always nil
// on reloaded reports.
func (db *DB) GetRun(runID string) (*report.Summary, error) {
	var s report.Summary
	err := db.QueryRow(
		`SELECT id, batch_code, started_at, finished_at,
			total_rules, total_cases, total_passed, total_failed,
			overall_accuracy, mean_f1, stddev_f1, min_f1, max_f1
		 FROM runs WHERE id = ?`, runID).Scan(
		&s.RunID, &s.BatchCode, &s.StartedAt, &s.FinishedAt,
		&s.TotalRules, &s.TotalCases, &s.TotalPassed, &s.TotalFailed,
		&s.OverallAccuracy, &s.Spread.MeanF1, &s.Spread.StdDevF1,
		&s.Spread.MinF1, &s.Spread.MaxF1,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	rows, err := db.Query(
		`SELECT id, rule_id, rule_name, sheet_ref,
			total_cases, passed, failed,
			true_positives, false_positives, false_negatives,
			precision, recall, f1, avg_iou, error, duration_ms
		 FROM rule_reports WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load rule reports for %s: %w", runID, err)
	}
	defer rows.Close()

	var reportIDs []int64
	for rows.Next() {
		var rr report.Rule
		var reportID, durationMs int64
		if err := rows.Scan(
			&reportID, &rr.Rule.ID, &rr.Rule.Name, &rr.Rule.SheetRef,
			&rr.TotalCases, &rr.Passed, &rr.Failed,
			&rr.Metrics.Counts.TruePositives, &rr.Metrics.Counts.FalsePositives,
			&rr.Metrics.Counts.FalseNegatives,
			&rr.Metrics.Precision, &rr.Metrics.Recall, &rr.Metrics.F1,
			&rr.Metrics.AvgIoU, &rr.Err, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("scan rule report: %w", err)
		}
		rr.Duration = time.Duration(durationMs) * time.Millisecond
		s.RuleReports = append(s.RuleReports, rr)
		reportIDs = append(reportIDs, reportID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, reportID := range reportIDs {
		fcs, err := db.loadFailedCases(reportID, s.RuleReports[i].Rule)
		if err != nil {
			return nil, err
		}
		s.RuleReports[i].FailedCases = fcs
	}

	return &s, nil
}

func (db *DB) loadFailedCases(reportID int64, rule rules.Rule) ([]report.FailedCase, error) {
	rows, err := db.Query(
		`SELECT video_name, row_key, kind, detail
		 FROM failed_cases WHERE rule_report_id = ? ORDER BY id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("load failed cases: %w", err)
	}
	defer rows.Close()

	var out []report.FailedCase
	for rows.Next() {
		var fc report.FailedCase
		var kind string
		var tc validate.TestCase
		if err := rows.Scan(&tc.VideoName, &tc.RowKey, &kind, &fc.Detail); err != nil {
			return nil, fmt.Errorf("scan failed case: %w", err)
		}
		tc.RuleID = rule.ID
		fc.Case = tc
		fc.Kind = report.FailureKind(kind)
		out = append(out, fc)
	}
	return out, rows.Err()
}
