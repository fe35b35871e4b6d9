// Package match implements greedy bipartite matching of expected against
// actual bounding boxes by intersection-over-union.
package match

import (
	"github.com/kestrel-data/visionproof/internal/geometry"
)

// Pair is one matched (expected, actual) box pair and its overlap.
type Pair struct {
	Expected geometry.Box `json:"expected"`
	Actual   geometry.Box `json:"actual"`
	IoU      float64      `json:"iou"`
}

// Outcome describes how two box sets line up at a given IoU threshold.
type Outcome struct {
	Pairs          []Pair         `json:"pairs"`
	FalsePositives []geometry.Box `json:"false_positives"`
	FalseNegatives []geometry.Box `json:"false_negatives"`
}

// TruePositives returns the number of matched pairs.
func (o Outcome) TruePositives() int { return len(o.Pairs) }

// Clean reports whether the outcome has no unmatched boxes on either side.
func (o Outcome) Clean() bool {
	return len(o.FalsePositives) == 0 && len(o.FalseNegatives) == 0
}

// AvgIoU returns the mean overlap across matched pairs, 0 with no pairs.
func (o Outcome) AvgIoU() float64 {
	if len(o.Pairs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range o.Pairs {
		sum += p.IoU
	}
	return sum / float64(len(o.Pairs))
}

type candidate struct {
	ei, ai int
	iou    float64
}

// Boxes performs greedy bipartite matching between expected and actual
// boxes. Boxes on different frames are never compared; a box without a
// frame index is eligible against every frame. The highest-IoU pair at or
// above threshold is taken first, ties broken by lower expected index then
// lower actual index, and both boxes leave the pool. Leftover expected
// boxes are false negatives, leftover actual boxes false positives.
func Boxes(expected, actual []geometry.Box, threshold float64) Outcome {
	out := Outcome{}

	// Score every frame-compatible pair up front. Sets are small (a
	// handful of boxes per case) so the full matrix is cheap.
	var cands []candidate
	for ei, e := range expected {
		for ai, a := range actual {
			if !e.SameFrame(a) {
				continue
			}
			if iou := geometry.IoU(e, a); iou >= threshold {
				cands = append(cands, candidate{ei: ei, ai: ai, iou: iou})
			}
		}
	}

	matchedExp := make([]bool, len(expected))
	matchedAct := make([]bool, len(actual))

	for {
		best := -1
		for i, c := range cands {
			if matchedExp[c.ei] || matchedAct[c.ai] {
				continue
			}
			if best == -1 || better(c, cands[best]) {
				best = i
			}
		}
		if best == -1 {
			break
		}
		c := cands[best]
		matchedExp[c.ei] = true
		matchedAct[c.ai] = true
		out.Pairs = append(out.Pairs, Pair{
			Expected: expected[c.ei],
			Actual:   actual[c.ai],
			IoU:      c.iou,
		})
	}

	for i, e := range expected {
		if !matchedExp[i] {
			out.FalseNegatives = append(out.FalseNegatives, e)
		}
	}
	for i, a := range actual {
		if !matchedAct[i] {
			out.FalsePositives = append(out.FalsePositives, a)
		}
	}

	return out
}

// better orders candidates by IoU descending, then expected index, then
// actual index, giving deterministic results for equal overlaps.
func better(a, b candidate) bool {
	if a.iou != b.iou {
		return a.iou > b.iou
	}
	if a.ei != b.ei {
		return a.ei < b.ei
	}
	return a.ai < b.ai
}
