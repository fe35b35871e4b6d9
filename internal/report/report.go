// Package report assembles per-rule and run-level results into the
// structures renderers and the run store consume.
package report

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kestrel-data/visionproof/internal/metrics"
	"github.com/kestrel-data/visionproof/internal/rules"
	"github.com/kestrel-data/visionproof/internal/validate"
)

// FailureKind distinguishes why a case failed, so infra noise is
// separable from genuine detection mismatches.
type FailureKind string

const (
	FailMismatch FailureKind = "mismatch"
	FailInfra    FailureKind = "infra"
	FailData     FailureKind = "data"
	FailTimeout  FailureKind = "timeout"
)

// FailedCase records one test case that did not pass, with evidence.
// Verdict is set only for mismatch failures; infra, data and timeout
// failures never reached validation.
type FailedCase struct {
	Case    validate.TestCase `json:"case"`
	Kind    FailureKind       `json:"kind"`
	Detail  string            `json:"detail,omitempty"`
	Verdict *validate.Verdict `json:"verdict,omitempty"`
}

// Rule is the finalized outcome of one rule's pipeline.
// TotalCases == Passed + Failed always; infra and timeout failures are
// counted in Failed but excluded from Metrics.
type Rule struct {
	Rule        rules.Rule      `json:"rule"`
	TotalCases  int             `json:"total_cases"`
	Passed      int             `json:"passed"`
	Failed      int             `json:"failed"`
	Metrics     metrics.Summary `json:"metrics"`
	FailedCases []FailedCase    `json:"failed_cases,omitempty"`
	Err         string          `json:"error,omitempty"`
	Duration    time.Duration   `json:"duration_ns"`
}

// Spread summarizes how metric quality varies across rules.
type Spread struct {
	MeanF1   float64 `json:"mean_f1"`
	StdDevF1 float64 `json:"stddev_f1"`
	MinF1    float64 `json:"min_f1"`
	MaxF1    float64 `json:"max_f1"`
}

// Summary is the run-level roll-up across all rules.
type Summary struct {
	RunID           string    `json:"run_id"`
	BatchCode       string    `json:"batch_code,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	TotalRules      int       `json:"total_rules"`
	TotalCases      int       `json:"total_cases"`
	TotalPassed     int       `json:"total_passed"`
	TotalFailed     int       `json:"total_failed"`
	OverallAccuracy float64   `json:"overall_accuracy"`
	Spread          Spread    `json:"spread"`
	RuleReports     []Rule    `json:"rule_reports"`
}

// BuildSummary folds finalized rule reports into a run summary. Reports
// must already be in rule-declaration order; this function preserves it.
// OverallAccuracy is 1.0 for an empty run, matching a spotless record of
// nothing attempted.
func BuildSummary(ruleReports []Rule) Summary {
	s := Summary{
		TotalRules:  len(ruleReports),
		RuleReports: ruleReports,
	}

	f1s := make([]float64, 0, len(ruleReports))
	for _, rr := range ruleReports {
		s.TotalCases += rr.TotalCases
		s.TotalPassed += rr.Passed
		s.TotalFailed += rr.Failed
		if rr.TotalCases > 0 {
			f1s = append(f1s, rr.Metrics.F1)
		}
	}

	if s.TotalCases == 0 {
		s.OverallAccuracy = 1.0
	} else {
		s.OverallAccuracy = float64(s.TotalPassed) / float64(s.TotalCases)
	}

	if len(f1s) > 0 {
		s.Spread = Spread{
			MeanF1:   stat.Mean(f1s, nil),
			StdDevF1: stdDev(f1s),
			MinF1:    minOf(f1s),
			MaxF1:    maxOf(f1s),
		}
	}

	return s
}

// stdDev is population-free: a single observation has zero spread
// rather than NaN.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
