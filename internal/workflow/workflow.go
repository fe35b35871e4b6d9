// Package workflow runs every enabled rule under a bounded pool and
// assembles the run summary.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-data/visionproof/internal/monitoring"
	"github.com/kestrel-data/visionproof/internal/report"
	"github.com/kestrel-data/visionproof/internal/rules"
	"github.com/kestrel-data/visionproof/internal/timeutil"
)

// RuleRunner is one rule's pipeline. The error return is reserved for
// failures that predate the case list; everything later is absorbed into
// the report.
type RuleRunner interface {
	Run(ctx context.Context) (report.Rule, error)
}

// Options tunes the orchestrator.
type Options struct {
	// Workers bounds how many rules run concurrently.
	Workers int
	// RuleTimeout cancels one rule's in-flight work without touching
	// its siblings. Zero means no per-rule deadline.
	RuleTimeout time.Duration
	Clock       timeutil.Clock
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// Orchestrator fans rule runners out over a worker pool and folds their
// reports back in declaration order.
type Orchestrator struct {
	catalogue *rules.Catalogue
	newRunner func(rules.Rule) RuleRunner
	opts      Options
}

// New builds an orchestrator. newRunner is called once per dispatched rule.
func New(catalogue *rules.Catalogue, newRunner func(rules.Rule) RuleRunner, opts Options) *Orchestrator {
	return &Orchestrator{
		catalogue: catalogue,
		newRunner: newRunner,
		opts:      opts.withDefaults(),
	}
}

// RunAll executes every enabled rule. Reports land in rule-declaration
// order no matter which runner finishes first, and a failed rule becomes
// an annotated zero-case report rather than sinking the run.
func (o *Orchestrator) RunAll(ctx context.Context) report.Summary {
	enabled := o.catalogue.Enabled()
	started := o.opts.Clock.Now()
	runID := uuid.NewString()
	monitoring.Logf("run %s: %d enabled rules, %d workers", runID, len(enabled), o.opts.Workers)

	reports := make([]report.Rule, len(enabled))

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Workers)
	for i, rule := range enabled {
		i, rule := i, rule
		g.Go(func() error {
			reports[i] = o.runRule(ctx, rule)
			return nil
		})
	}
	g.Wait()

	s := report.BuildSummary(reports)
	s.RunID = runID
	s.BatchCode = fmt.Sprintf("run_%s", started.UTC().Format("20060102T150405"))
	s.StartedAt = started
	s.FinishedAt = o.opts.Clock.Now()
	monitoring.Logf("run %s: %d/%d cases passed", runID, s.TotalPassed, s.TotalCases)
	return s
}

// RunOne executes a single rule by id, enabled or not.
func (o *Orchestrator) RunOne(ctx context.Context, ruleID string) (report.Rule, error) {
	rule, ok := o.catalogue.Find(ruleID)
	if !ok {
		return report.Rule{}, fmt.Errorf("unknown rule %q", ruleID)
	}
	return o.runRule(ctx, rule), nil
}

// runRule applies the per-rule deadline and converts an escaped rule-wide
// error into an annotated report.
func (o *Orchestrator) runRule(ctx context.Context, rule rules.Rule) report.Rule {
	if o.opts.RuleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RuleTimeout)
		defer cancel()
	}

	rr, err := o.newRunner(rule).Run(ctx)
	if err != nil {
		monitoring.Logf("rule %s failed: %v", rule.ID, err)
		return report.Rule{Rule: rule, Err: err.Error()}
	}
	return rr
}
