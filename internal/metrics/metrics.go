// Package metrics rolls box-level match outcomes up into classification
// metrics for a rule.
package metrics

import "github.com/kestrel-data/visionproof/internal/validate"

// Counts are box-level tallies pooled across every verdict in a rule.
type Counts struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

// Summary holds the derived classification metrics for a rule.
//
// Precision is defined as 1.0 when TP+FP is zero and recall as 1.0 when
// TP+FN is zero: a rule with nothing to detect and nothing detected is
// scored perfect, not undefined. F1 is 0 only when both are 0.
type Summary struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	AvgIoU    float64 `json:"avg_iou"`
	Counts    Counts  `json:"counts"`
}

// Aggregate pools the match outcomes of all verdicts and derives
// precision, recall, F1 and mean matched-pair IoU.
func Aggregate(verdicts []validate.Verdict) Summary {
	var c Counts
	var iouSum float64
	for _, v := range verdicts {
		c.TruePositives += len(v.Match.Pairs)
		c.FalsePositives += len(v.Match.FalsePositives)
		c.FalseNegatives += len(v.Match.FalseNegatives)
		for _, p := range v.Match.Pairs {
			iouSum += p.IoU
		}
	}

	s := Summary{Counts: c}

	tp := float64(c.TruePositives)
	if c.TruePositives+c.FalsePositives == 0 {
		s.Precision = 1.0
	} else {
		s.Precision = tp / float64(c.TruePositives+c.FalsePositives)
	}
	if c.TruePositives+c.FalseNegatives == 0 {
		s.Recall = 1.0
	} else {
		s.Recall = tp / float64(c.TruePositives+c.FalseNegatives)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	if c.TruePositives > 0 {
		s.AvgIoU = iouSum / tp
	}

	return s
}
