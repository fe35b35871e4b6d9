// Package analysis is the adapter for the AI video-analysis service:
// upload, job start and job polling.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/httputil"
	"github.com/kestrel-data/visionproof/internal/validate"
)

// JobStatus is the analysis service's view of a job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the job will not change state again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// RuleConfig maps a detection rule onto analysis parameters.
type RuleConfig struct {
	RuleID    string            `json:"rule_id"`
	RuleName  string            `json:"rule_name"`
	BatchCode string            `json:"batch_code"`
	Params    map[string]string `json:"params,omitempty"`
}

// BatchCode builds the service-side grouping key for one rule's job.
func BatchCode(ruleID string, now time.Time) string {
	return fmt.Sprintf("%s_%s", ruleID, now.UTC().Format("20060102T150405"))
}

// PollResult is one poll observation. Results is keyed by video id
// and assembled from the job's evidence pages once it completes.
type PollResult struct {
	Status  JobStatus
	Message string
	Results map[string]validate.AnalysisResult
}

// defaultEvidencePageSize is the page size requested from the
// evidence listing. A page shorter than this marks the end.
const defaultEvidencePageSize = 100

// Client talks to the analysis service.
type Client struct {
	base     string
	http     httputil.HTTPClient
	pageSize int
}

// NewClient builds an analysis client around baseURL.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: baseURL, http: hc, pageSize: defaultEvidencePageSize}
}

type uploadResponse struct {
	VideoID string `json:"video_id"`
}

// Upload submits one video blob and returns the service's id for it.
func (c *Client) Upload(ctx context.Context, name string, data []byte) (string, error) {
	u := fmt.Sprintf("%s/api/videos?name=%s", c.base, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", faults.Permanent("upload video", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", faults.Transient("upload video", err)
	}
	if err := faults.FromStatus("upload video", resp.StatusCode); err != nil {
		resp.Body.Close()
		return "", err
	}

	var body uploadResponse
	if err := httputil.DecodeJSON(resp, &body); err != nil {
		return "", faults.Permanent("upload video", err)
	}
	if body.VideoID == "" {
		return "", faults.Permanent("upload video", fmt.Errorf("service returned no video id for %s", name))
	}
	return body.VideoID, nil
}

type checkRequest struct {
	Names []string `json:"names"`
}

type checkResponse struct {
	Missing []string `json:"missing"`
}

// CheckMissing asks which of the named videos the service does not
// already hold, so uploads can be skipped for known content.
func (c *Client) CheckMissing(ctx context.Context, names []string) ([]string, error) {
	req, err := httputil.NewJSONRequest(ctx, http.MethodPost, c.base+"/api/videos/check", checkRequest{Names: names})
	if err != nil {
		return nil, faults.Permanent("check videos", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, faults.Transient("check videos", err)
	}
	if err := faults.FromStatus("check videos", resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}

	var body checkResponse
	if err := httputil.DecodeJSON(resp, &body); err != nil {
		return nil, faults.Permanent("check videos", err)
	}
	return body.Missing, nil
}

type startJobRequest struct {
	VideoIDs []string   `json:"video_ids"`
	Rule     RuleConfig `json:"rule"`
}

type startJobResponse struct {
	JobID string `json:"job_id"`
}

// StartJob begins analysis of the uploaded videos under one rule's
// detection configuration and returns the job id to poll.
func (c *Client) StartJob(ctx context.Context, videoIDs []string, cfg RuleConfig) (string, error) {
	req, err := httputil.NewJSONRequest(ctx, http.MethodPost, c.base+"/api/videos/analyze", startJobRequest{
		VideoIDs: videoIDs,
		Rule:     cfg,
	})
	if err != nil {
		return "", faults.Permanent("start job", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", faults.Transient("start job", err)
	}
	if err := faults.FromStatus("start job", resp.StatusCode); err != nil {
		resp.Body.Close()
		return "", err
	}

	var body startJobResponse
	if err := httputil.DecodeJSON(resp, &body); err != nil {
		return "", faults.Permanent("start job", err)
	}
	if body.JobID == "" {
		return "", faults.Permanent("start job", fmt.Errorf("service returned no job id"))
	}
	return body.JobID, nil
}

type jobStatusResponse struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// PollJob fetches the current status of a job. Once the job has
// completed, the per-video results are collected by paging through the
// job's evidence listing, so a completed job always returns the full
// result set no matter how many evidences the service recorded.
func (c *Client) PollJob(ctx context.Context, jobID string) (PollResult, error) {
	u := fmt.Sprintf("%s/api/jobs/%s", c.base, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return PollResult{}, faults.Permanent("poll job", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return PollResult{}, faults.Transient("poll job", err)
	}
	if err := faults.FromStatus("poll job", resp.StatusCode); err != nil {
		resp.Body.Close()
		return PollResult{}, err
	}

	var body jobStatusResponse
	if err := httputil.DecodeJSON(resp, &body); err != nil {
		return PollResult{}, faults.Permanent("poll job", err)
	}

	switch body.Status {
	case JobPending, JobRunning, JobFailed:
		return PollResult{Status: body.Status, Message: body.Message}, nil
	case JobCompleted:
	default:
		return PollResult{}, faults.Permanent("poll job", fmt.Errorf("unknown job status %q", body.Status))
	}

	results, err := c.fetchEvidences(ctx, jobID)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{Status: body.Status, Message: body.Message, Results: results}, nil
}

type evidencePage struct {
	Results map[string]validate.AnalysisResult `json:"results"`
}

// fetchEvidences walks the evidence pages of a completed job and
// merges them into one map. A page shorter than the requested size is
// the last one.
func (c *Client) fetchEvidences(ctx context.Context, jobID string) (map[string]validate.AnalysisResult, error) {
	all := make(map[string]validate.AnalysisResult)
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/api/jobs/%s/evidences?page=%d&page_size=%d",
			c.base, url.PathEscape(jobID), page, c.pageSize)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, faults.Permanent("fetch evidences", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, faults.Transient("fetch evidences", err)
		}
		if err := faults.FromStatus("fetch evidences", resp.StatusCode); err != nil {
			resp.Body.Close()
			return nil, err
		}

		var body evidencePage
		if err := httputil.DecodeJSON(resp, &body); err != nil {
			return nil, faults.Permanent("fetch evidences", err)
		}
		for id, r := range body.Results {
			all[id] = r
		}
		if len(body.Results) < c.pageSize {
			return all, nil
		}
	}
}
