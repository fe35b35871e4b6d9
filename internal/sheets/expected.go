package sheets

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/geometry"
)

// Row is one labeled spreadsheet row as delivered by the sheet service.
// Event times are "MM:SS" offsets into the clip; Area is an
// [x1 y1 x2 y2] corner quad covering the violation.
type Row struct {
	Key        string    `json:"key"`
	VideoName  string    `json:"video_name"`
	Violation  bool      `json:"violation"`
	EventStart string    `json:"event_start,omitempty"`
	EventEnd   string    `json:"event_end,omitempty"`
	Area       []float64 `json:"area,omitempty"`
}

// ParseClipTime converts an "MM:SS" offset to seconds.
func ParseClipTime(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clip time %q: want MM:SS", s)
	}
	mins, err := strconv.Atoi(parts[0])
	if err != nil || mins < 0 {
		return 0, fmt.Errorf("clip time %q: bad minutes", s)
	}
	secs, err := strconv.Atoi(parts[1])
	if err != nil || secs < 0 || secs > 59 {
		return 0, fmt.Errorf("clip time %q: bad seconds", s)
	}
	return float64(mins*60 + secs), nil
}

// ExpectedBoxes converts a labeled row into the expected bounding boxes
// for matching. The labeling convention marks one event interval with one
// area; we pin that area to three frames, the event start, midpoint and
// end, at the store's effective frame rate (source fps divided by the
// archival compression factor).
//
// Rows without a violation produce no boxes. A violation row missing its
// event times or area is a data error: the case is recorded and skipped,
// never guessed at.
func ExpectedBoxes(row Row, effectiveFPS float64) ([]geometry.Box, error) {
	if !row.Violation {
		return nil, nil
	}
	if effectiveFPS <= 0 {
		return nil, faults.Dataf("build expected", "non-positive frame rate %v", effectiveFPS)
	}
	if row.EventStart == "" || row.EventEnd == "" {
		return nil, faults.Dataf("build expected", "row %s: violation without event times", row.Key)
	}
	if len(row.Area) != 4 {
		return nil, faults.Dataf("build expected", "row %s: area needs 4 corners, got %d", row.Key, len(row.Area))
	}

	start, err := ParseClipTime(row.EventStart)
	if err != nil {
		return nil, faults.Data("build expected", err)
	}
	end, err := ParseClipTime(row.EventEnd)
	if err != nil {
		return nil, faults.Data("build expected", err)
	}
	if end < start {
		return nil, faults.Dataf("build expected", "row %s: event ends before it starts", row.Key)
	}

	base := geometry.FromCorners(row.Area[0], row.Area[1], row.Area[2], row.Area[3])
	if !base.Valid() || base.Area() == 0 {
		return nil, faults.Dataf("build expected", "row %s: degenerate area", row.Key)
	}

	frames := eventFrames(start, end, effectiveFPS)
	boxes := make([]geometry.Box, 0, len(frames))
	for _, f := range frames {
		b := base
		frame := f
		b.Frame = &frame
		boxes = append(boxes, b)
	}
	return boxes, nil
}

// eventFrames returns the start, midpoint and end frame indices for an
// event, deduplicated for very short events.
func eventFrames(startSec, endSec, fps float64) []int {
	toFrame := func(sec float64) int {
		return int(math.Round(sec * fps))
	}
	first := toFrame(startSec)
	mid := toFrame((startSec + endSec) / 2)
	last := toFrame(endSec)

	frames := []int{first}
	if mid != first {
		frames = append(frames, mid)
	}
	if last != mid && last != first {
		frames = append(frames, last)
	}
	return frames
}
