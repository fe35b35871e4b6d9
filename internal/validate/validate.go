// Package validate turns one (expected, actual) result pair into a
// pass/fail verdict with box-level evidence.
package validate

import (
	"github.com/kestrel-data/visionproof/internal/geometry"
	"github.com/kestrel-data/visionproof/internal/match"
)

// DefaultIoUThreshold is the overlap a detected box must reach against an
// expected box to count as the same detection.
const DefaultIoUThreshold = 0.5

// TestCase is one labeled video: the expected outcome for a single rule.
// Identity is (RuleID, VideoName).
type TestCase struct {
	VideoName         string         `json:"video_name"`
	RuleID            string         `json:"rule_id"`
	RowKey            string         `json:"row_key,omitempty"`
	ExpectedViolation bool           `json:"expected_violation"`
	ExpectedBoxes     []geometry.Box `json:"expected_boxes,omitempty"`
}

// AnalysisResult is what the analysis service reported for one video.
type AnalysisResult struct {
	ActualViolation bool               `json:"actual_violation"`
	ActualBoxes     []geometry.Box     `json:"actual_boxes,omitempty"`
	Confidence      float64            `json:"confidence"`
	RawMetrics      map[string]float64 `json:"raw_metrics,omitempty"`
}

// Config tunes the validation pass.
type Config struct {
	IoUThreshold float64
}

// Threshold returns the configured IoU threshold or the default.
func (c Config) Threshold() float64 {
	if c.IoUThreshold > 0 {
		return c.IoUThreshold
	}
	return DefaultIoUThreshold
}

// Verdict is the outcome for one test case. It always carries the full
// match outcome so failed-case evidence is reproducible.
type Verdict struct {
	Case             TestCase       `json:"case"`
	Result           AnalysisResult `json:"result"`
	ViolationCorrect bool           `json:"violation_correct"`
	Match            match.Outcome  `json:"match"`
	Passed           bool           `json:"passed"`
}

// Case scores one analysis result against its test case. When no
// violation was expected, boxes are ignored and the verdict rests on the
// violation flag alone. Otherwise expected and actual boxes are matched
// and any unmatched box on either side fails the case.
func Case(tc TestCase, res AnalysisResult, cfg Config) Verdict {
	v := Verdict{
		Case:             tc,
		Result:           res,
		ViolationCorrect: tc.ExpectedViolation == res.ActualViolation,
	}

	if !tc.ExpectedViolation {
		v.Passed = v.ViolationCorrect
		return v
	}

	v.Match = match.Boxes(tc.ExpectedBoxes, res.ActualBoxes, cfg.Threshold())
	v.Passed = v.ViolationCorrect && v.Match.Clean()
	return v
}
