// Package sheets is the test-case source adapter: it reads labeled rows
// from the sheet service and writes verdicts back.
package sheets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/httputil"
	"github.com/kestrel-data/visionproof/internal/monitoring"
	"github.com/kestrel-data/visionproof/internal/validate"
)

// RowError records one row that could not be turned into a test case.
type RowError struct {
	Key string
	Err error
}

// Client talks to the sheet service.
type Client struct {
	base         string
	http         httputil.HTTPClient
	effectiveFPS float64
}

// NewClient builds a sheet client. effectiveFPS is the frame rate used
// to convert event timestamps into frame indices.
func NewClient(baseURL string, hc httputil.HTTPClient, effectiveFPS float64) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: baseURL, http: hc, effectiveFPS: effectiveFPS}
}

type rowsResponse struct {
	Rows []Row `json:"rows"`
}

// Fetch loads the labeled rows for one sheet and converts them into test
// cases. Malformed rows come back as RowErrors next to the good cases;
// only transport-level failures return an error.
func (c *Client) Fetch(ctx context.Context, ruleID, sheetRef string) ([]validate.TestCase, []RowError, error) {
	u := fmt.Sprintf("%s/api/sheets/%s/rows", c.base, url.PathEscape(sheetRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, faults.Permanent("fetch cases", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, faults.Transient("fetch cases", err)
	}
	if err := faults.FromStatus("fetch cases", resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, nil, err
	}

	var body rowsResponse
	if err := httputil.DecodeJSON(resp, &body); err != nil {
		return nil, nil, faults.Permanent("fetch cases", err)
	}

	var cases []validate.TestCase
	var rowErrs []RowError
	for _, row := range body.Rows {
		if row.VideoName == "" {
			rowErrs = append(rowErrs, RowError{Key: row.Key, Err: faults.Dataf("fetch cases", "row %s: missing video name", row.Key)})
			continue
		}
		boxes, err := ExpectedBoxes(row, c.effectiveFPS)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Key: row.Key, Err: err})
			continue
		}
		cases = append(cases, validate.TestCase{
			VideoName:         row.VideoName,
			RuleID:            ruleID,
			RowKey:            row.Key,
			ExpectedViolation: row.Violation,
			ExpectedBoxes:     boxes,
		})
	}

	return cases, rowErrs, nil
}

type verdictPayload struct {
	RowKey string `json:"row_key"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report writes one verdict back to its sheet row. Write-back is
// best-effort: failures are logged and swallowed, they must never sink a
// rule that already scored.
func (c *Client) Report(ctx context.Context, sheetRef, rowKey string, passed bool, detail string) {
	u := fmt.Sprintf("%s/api/sheets/%s/results", c.base, url.PathEscape(sheetRef))
	req, err := httputil.NewJSONRequest(ctx, http.MethodPost, u, verdictPayload{
		RowKey: rowKey,
		Passed: passed,
		Detail: detail,
	})
	if err != nil {
		monitoring.Logf("sheet write-back for row %s failed: %v", rowKey, err)
		return
	}

	resp, err := c.http.Do(req)
	if err != nil {
		monitoring.Logf("sheet write-back for row %s failed: %v", rowKey, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		monitoring.Logf("sheet write-back for row %s rejected: status %d", rowKey, resp.StatusCode)
	}
}
