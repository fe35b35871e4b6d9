package sheets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/httputil"
)

const rowsBody = `{
	"rows": [
		{"key": "r1", "video_name": "clean.mp4", "violation": false},
		{"key": "r2", "video_name": "phone.mp4", "violation": true,
		 "event_start": "00:05", "event_end": "00:15", "area": [10, 10, 60, 60]},
		{"key": "r3", "violation": false},
		{"key": "r4", "video_name": "broken.mp4", "violation": true}
	]
}`

func TestFetch(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(200, rowsBody)
	c := NewClient("http://sheets.test", mock, 9.6)

	cases, rowErrs, err := c.Fetch(context.Background(), "phone_usage", "sheet-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(cases) != 2 {
		t.Fatalf("want 2 good cases, got %d", len(cases))
	}
	if cases[0].VideoName != "clean.mp4" || cases[0].ExpectedViolation {
		t.Errorf("first case wrong: %+v", cases[0])
	}
	if cases[1].RuleID != "phone_usage" || len(cases[1].ExpectedBoxes) != 3 {
		t.Errorf("violation case wrong: %+v", cases[1])
	}

	// r3 has no video name, r4 has a violation without event data.
	if len(rowErrs) != 2 {
		t.Fatalf("want 2 row errors, got %d", len(rowErrs))
	}
	for _, re := range rowErrs {
		if faults.KindOf(re.Err) != faults.KindData {
			t.Errorf("row error %s should be a data error, got %v", re.Key, re.Err)
		}
	}

	req := mock.GetRequest(0)
	if req == nil || !strings.Contains(req.URL.Path, "/api/sheets/sheet-1/rows") {
		t.Errorf("unexpected request: %v", req)
	}
}

func TestFetchTransportErrorIsTransient(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("connection refused"))
	c := NewClient("http://sheets.test", mock, 9.6)

	_, _, err := c.Fetch(context.Background(), "r", "s")
	if faults.KindOf(err) != faults.KindTransient {
		t.Errorf("transport errors should be transient, got %v", err)
	}
}

func TestFetchStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   faults.Kind
	}{
		{503, faults.KindTransient},
		{404, faults.KindPermanent},
		{401, faults.KindPermanent},
	}
	for _, tt := range tests {
		mock := httputil.NewMockHTTPClient()
		mock.AddResponse(tt.status, "")
		c := NewClient("http://sheets.test", mock, 9.6)

		_, _, err := c.Fetch(context.Background(), "r", "s")
		if err == nil || faults.KindOf(err) != tt.want {
			t.Errorf("status %d: got %v, want kind %v", tt.status, err, tt.want)
		}
	}
}

func TestFetchMalformedBody(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(200, "{oops")
	c := NewClient("http://sheets.test", mock, 9.6)

	_, _, err := c.Fetch(context.Background(), "r", "s")
	if faults.KindOf(err) != faults.KindPermanent {
		t.Errorf("malformed body should be permanent, got %v", err)
	}
}

func TestReportSwallowsFailures(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("down"))
	c := NewClient("http://sheets.test", mock, 9.6)

	// Must not panic or return anything.
	c.Report(context.Background(), "sheet-1", "r1", true, "")
	if mock.RequestCount() != 1 {
		t.Errorf("want 1 request attempt, got %d", mock.RequestCount())
	}
}

func TestReportSendsVerdict(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(200, "{}")
	c := NewClient("http://sheets.test", mock, 9.6)

	c.Report(context.Background(), "sheet-1", "r2", false, "1 false negative")

	req := mock.GetRequest(0)
	if req == nil {
		t.Fatal("no request recorded")
	}
	if req.Method != "POST" || !strings.Contains(req.URL.Path, "/api/sheets/sheet-1/results") {
		t.Errorf("unexpected request: %s %s", req.Method, req.URL)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
