// Package runner drives the per-rule pipeline: load labeled cases, fetch
// and upload their videos, run one analysis job, poll it, and score the
// results. Case-level failures become report entries; only failures that
// predate the case list abort a rule.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-data/visionproof/internal/analysis"
	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/metrics"
	"github.com/kestrel-data/visionproof/internal/monitoring"
	"github.com/kestrel-data/visionproof/internal/report"
	"github.com/kestrel-data/visionproof/internal/rules"
	"github.com/kestrel-data/visionproof/internal/sheets"
	"github.com/kestrel-data/visionproof/internal/timeutil"
	"github.com/kestrel-data/visionproof/internal/validate"
)

// State names the stage a runner is in. Transitions are strictly forward.
type State string

const (
	StatePending     State = "PENDING"
	StateLoading     State = "LOADING"
	StateDownloading State = "DOWNLOADING"
	StateUploading   State = "UPLOADING"
	StateAnalyzing   State = "ANALYZING"
	StatePolling     State = "POLLING"
	StateValidating  State = "VALIDATING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// TestCaseSource reads labeled rows and takes verdict write-backs.
type TestCaseSource interface {
	Fetch(ctx context.Context, ruleID, sheetRef string) ([]validate.TestCase, []sheets.RowError, error)
	Report(ctx context.Context, sheetRef, rowKey string, passed bool, detail string)
}

// VideoSource fetches video blobs by name.
type VideoSource interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// AnalysisService is the narrow contract the runner needs from the AI
// service. The service keys stored videos by name; Upload returns the
// canonical key.
type AnalysisService interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
	CheckMissing(ctx context.Context, names []string) ([]string, error)
	StartJob(ctx context.Context, videoIDs []string, cfg analysis.RuleConfig) (string, error)
	PollJob(ctx context.Context, jobID string) (analysis.PollResult, error)
}

// Options tunes one runner.
type Options struct {
	Validate    validate.Config
	CaseWorkers int
	Retry       faults.Backoff
	Poll        PollPolicy
	Clock       timeutil.Clock
}

func (o Options) withDefaults() Options {
	if o.CaseWorkers <= 0 {
		o.CaseWorkers = 4
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = faults.DefaultBackoff
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// Runner executes the pipeline for a single rule.
type Runner struct {
	rule   rules.Rule
	cases  TestCaseSource
	videos VideoSource
	ai     AnalysisService
	opts   Options

	mu    sync.Mutex
	state State
}

// New builds a runner for one rule.
func New(rule rules.Rule, cases TestCaseSource, videos VideoSource, ai AnalysisService, opts Options) *Runner {
	return &Runner{
		rule:   rule,
		cases:  cases,
		videos: videos,
		ai:     ai,
		opts:   opts.withDefaults(),
		state:  StatePending,
	}
}

// State returns the runner's current stage.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) transition(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	monitoring.Logf("rule %s: %s", r.rule.ID, s)
}

// caseOutcome tracks one test case through the pipeline. Exactly one of
// verdict or failure is set when the rule finalizes.
type caseOutcome struct {
	tc      validate.TestCase
	videoID string
	verdict *validate.Verdict
	failed  *report.FailedCase
}

func (co *caseOutcome) fail(kind report.FailureKind, detail string) {
	co.failed = &report.FailedCase{Case: co.tc, Kind: kind, Detail: detail}
}

// Run executes the whole pipeline. The returned error is non-nil only
// when the case list itself could not be loaded; every failure after
// that point is absorbed into the report so no case goes unaccounted.
func (r *Runner) Run(ctx context.Context) (report.Rule, error) {
	started := r.opts.Clock.Now()
	rr := report.Rule{Rule: r.rule}

	r.transition(StateLoading)
	cases, rowErrs, err := r.loadCases(ctx)
	if err != nil {
		r.transition(StateFailed)
		return rr, err
	}

	outcomes := make([]*caseOutcome, len(cases))
	for i, tc := range cases {
		outcomes[i] = &caseOutcome{tc: tc}
	}

	if len(outcomes) == 0 && len(rowErrs) == 0 {
		// An empty sheet is a completed rule, not an error.
		r.transition(StateDone)
		rr.Metrics = metrics.Aggregate(nil)
		rr.Duration = r.opts.Clock.Since(started)
		return rr, nil
	}

	r.transition(StateDownloading)
	r.stageVideos(ctx, outcomes)

	ready := readyOutcomes(outcomes)
	if len(ready) > 0 {
		r.transition(StateAnalyzing)
		jobID, err := r.startJob(ctx, ready)
		if err != nil {
			r.failRemaining(ready, err)
			rr.Err = fmt.Sprintf("start job: %v", err)
			r.transition(StateFailed)
		} else {
			r.transition(StatePolling)
			res, err := pollUntilDone(ctx, r.opts.Clock, r.opts.Poll, jobID, func(ctx context.Context) (analysis.PollResult, error) {
				return r.ai.PollJob(ctx, jobID)
			})
			switch {
			case err != nil:
				r.failRemaining(ready, err)
				rr.Err = fmt.Sprintf("poll job %s: %v", jobID, err)
				r.transition(StateFailed)
			case res.Status == analysis.JobFailed:
				jobErr := faults.Permanent("analysis job", fmt.Errorf("job %s failed: %s", jobID, res.Message))
				r.failRemaining(ready, jobErr)
				rr.Err = jobErr.Error()
				r.transition(StateFailed)
			default:
				r.transition(StateValidating)
				r.validateCases(ctx, ready, res)
			}
		}
	}

	return r.finalize(rr, outcomes, rowErrs, started), nil
}

// readyOutcomes returns the cases that survived staging.
func readyOutcomes(outcomes []*caseOutcome) []*caseOutcome {
	var ready []*caseOutcome
	for _, co := range outcomes {
		if co.failed == nil {
			ready = append(ready, co)
		}
	}
	return ready
}

// loadCases fetches the labeled rows with retry on transient failures.
func (r *Runner) loadCases(ctx context.Context) ([]validate.TestCase, []sheets.RowError, error) {
	var cases []validate.TestCase
	var rowErrs []sheets.RowError
	err := faults.Retry(ctx, r.opts.Clock, r.opts.Retry, "fetch cases", func() error {
		var err error
		cases, rowErrs, err = r.cases.Fetch(ctx, r.rule.ID, r.rule.SheetRef)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rule %s: %w", r.rule.ID, err)
	}
	return cases, rowErrs, nil
}

// stageVideos fans out per case: ask the service which videos it is
// missing, then fetch and upload those. Every case failure here is
// recorded on its outcome and excluded from the job.
func (r *Runner) stageVideos(ctx context.Context, outcomes []*caseOutcome) {
	names := make([]string, len(outcomes))
	for i, co := range outcomes {
		names[i] = co.tc.VideoName
	}

	var missing []string
	err := faults.Retry(ctx, r.opts.Clock, r.opts.Retry, "check videos", func() error {
		var err error
		missing, err = r.ai.CheckMissing(ctx, names)
		return err
	})
	if err != nil {
		// Treat every video as missing rather than failing the rule.
		monitoring.Logf("rule %s: video check failed, uploading all: %v", r.rule.ID, err)
		missing = names
	}

	needUpload := make(map[string]bool, len(missing))
	for _, name := range missing {
		needUpload[name] = true
	}

	r.transition(StateUploading)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.CaseWorkers)
	for _, co := range outcomes {
		co := co
		if !needUpload[co.tc.VideoName] {
			co.videoID = co.tc.VideoName
			continue
		}
		g.Go(func() error {
			r.stageOne(gctx, co)
			return nil
		})
	}
	g.Wait()
}

// stageOne downloads and uploads a single case's video.
func (r *Runner) stageOne(ctx context.Context, co *caseOutcome) {
	var data []byte
	err := faults.Retry(ctx, r.opts.Clock, r.opts.Retry, "fetch video", func() error {
		var err error
		data, err = r.videos.Fetch(ctx, co.tc.VideoName)
		return err
	})
	if err != nil {
		co.fail(failureKind(err), fmt.Sprintf("fetch video %s: %v", co.tc.VideoName, err))
		return
	}

	var id string
	err = faults.Retry(ctx, r.opts.Clock, r.opts.Retry, "upload video", func() error {
		var err error
		id, err = r.ai.Upload(ctx, co.tc.VideoName, data)
		return err
	})
	if err != nil {
		co.fail(failureKind(err), fmt.Sprintf("upload video %s: %v", co.tc.VideoName, err))
		return
	}

	co.videoID = id
}

// startJob launches one analysis job covering every staged case.
func (r *Runner) startJob(ctx context.Context, ready []*caseOutcome) (string, error) {
	ids := make([]string, len(ready))
	for i, co := range ready {
		ids[i] = co.videoID
	}

	cfg := analysis.RuleConfig{
		RuleID:    r.rule.ID,
		RuleName:  r.rule.Name,
		BatchCode: analysis.BatchCode(r.rule.ID, r.opts.Clock.Now()),
		Params:    r.rule.Params,
	}

	var jobID string
	err := faults.Retry(ctx, r.opts.Clock, r.opts.Retry, "start job", func() error {
		var err error
		jobID, err = r.ai.StartJob(ctx, ids, cfg)
		return err
	})
	return jobID, err
}

// validateCases scores each staged case against the job results. A video
// absent from the results means the service saw no violation in it.
func (r *Runner) validateCases(ctx context.Context, ready []*caseOutcome, res analysis.PollResult) {
	for _, co := range ready {
		result, ok := res.Results[co.videoID]
		if !ok {
			result = validate.AnalysisResult{}
		}
		v := validate.Case(co.tc, result, r.opts.Validate)
		co.verdict = &v

		if co.tc.RowKey != "" {
			r.cases.Report(ctx, r.rule.SheetRef, co.tc.RowKey, v.Passed, verdictDetail(v))
		}
	}
}

// failRemaining marks every not-yet-resolved case with the rule-wide
// failure so totals still account for it.
func (r *Runner) failRemaining(ready []*caseOutcome, err error) {
	kind := failureKind(err)
	for _, co := range ready {
		if co.verdict == nil && co.failed == nil {
			co.fail(kind, err.Error())
		}
	}
}

// finalize folds outcomes and row errors into the rule report. Metrics
// cover only validated cases; infra, data and timeout failures count
// toward totals but contribute no boxes.
func (r *Runner) finalize(rr report.Rule, outcomes []*caseOutcome, rowErrs []sheets.RowError, started time.Time) report.Rule {
	var verdicts []validate.Verdict
	for _, co := range outcomes {
		rr.TotalCases++
		switch {
		case co.failed != nil:
			rr.Failed++
			rr.FailedCases = append(rr.FailedCases, *co.failed)
		case co.verdict != nil && co.verdict.Passed:
			rr.Passed++
			verdicts = append(verdicts, *co.verdict)
		case co.verdict != nil:
			rr.Failed++
			verdicts = append(verdicts, *co.verdict)
			v := *co.verdict
			rr.FailedCases = append(rr.FailedCases, report.FailedCase{
				Case:    co.tc,
				Kind:    report.FailMismatch,
				Detail:  verdictDetail(v),
				Verdict: &v,
			})
		default:
			// Unreachable: every outcome resolves to a verdict or failure.
			rr.Failed++
			rr.FailedCases = append(rr.FailedCases, report.FailedCase{
				Case: co.tc, Kind: report.FailInfra, Detail: "case never resolved",
			})
		}
	}

	for _, re := range rowErrs {
		rr.TotalCases++
		rr.Failed++
		rr.FailedCases = append(rr.FailedCases, report.FailedCase{
			Case:   validate.TestCase{RuleID: r.rule.ID, RowKey: re.Key},
			Kind:   report.FailData,
			Detail: re.Err.Error(),
		})
	}

	rr.Metrics = metrics.Aggregate(verdicts)
	rr.Duration = r.opts.Clock.Since(started)

	if r.State() != StateFailed {
		r.transition(StateDone)
	}
	return rr
}

// failureKind maps the fault taxonomy onto report failure kinds.
func failureKind(err error) report.FailureKind {
	switch faults.KindOf(err) {
	case faults.KindData:
		return report.FailData
	case faults.KindTimeout:
		return report.FailTimeout
	default:
		return report.FailInfra
	}
}

func verdictDetail(v validate.Verdict) string {
	if v.Passed {
		return "passed"
	}
	if !v.ViolationCorrect {
		return fmt.Sprintf("violation flag mismatch: expected %t, got %t",
			v.Case.ExpectedViolation, v.Result.ActualViolation)
	}
	return fmt.Sprintf("%d unmatched expected, %d unmatched actual boxes",
		len(v.Match.FalseNegatives), len(v.Match.FalsePositives))
}
