package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kestrel-data/visionproof/internal/httputil"
	"github.com/kestrel-data/visionproof/internal/report"
)

// renderRunCharts renders an HTML page with per-rule metric charts for
// one run. This is a debugging view; the JSON endpoints carry the same
// numbers for programmatic use.
func (s *Server) renderRunCharts(w http.ResponseWriter, summary *report.Summary) {
	page := components.NewPage()
	page.AddCharts(metricsBar(summary), passFailBar(summary))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render charts: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// metricsBar charts precision, recall and F1 side by side per rule.
func metricsBar(summary *report.Summary) *charts.Bar {
	ruleIDs := make([]string, 0, len(summary.RuleReports))
	precision := make([]opts.BarData, 0, len(summary.RuleReports))
	recall := make([]opts.BarData, 0, len(summary.RuleReports))
	f1 := make([]opts.BarData, 0, len(summary.RuleReports))
	for _, rr := range summary.RuleReports {
		ruleIDs = append(ruleIDs, rr.Rule.ID)
		precision = append(precision, opts.BarData{Value: rr.Metrics.Precision})
		recall = append(recall, opts.BarData{Value: rr.Metrics.Recall})
		f1 = append(f1, opts.BarData{Value: rr.Metrics.F1})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("Run %s", summary.RunID)}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Detection metrics by rule",
			Subtitle: fmt.Sprintf("run=%s accuracy=%.2f", summary.RunID, summary.OverallAccuracy),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "score"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(ruleIDs)
	bar.AddSeries("precision", precision)
	bar.AddSeries("recall", recall)
	bar.AddSeries("f1", f1)
	return bar
}

// passFailBar charts passed vs failed case counts per rule.
func passFailBar(summary *report.Summary) *charts.Bar {
	ruleIDs := make([]string, 0, len(summary.RuleReports))
	passed := make([]opts.BarData, 0, len(summary.RuleReports))
	failed := make([]opts.BarData, 0, len(summary.RuleReports))
	for _, rr := range summary.RuleReports {
		ruleIDs = append(ruleIDs, rr.Rule.ID)
		passed = append(passed, opts.BarData{Value: rr.Passed})
		failed = append(failed, opts.BarData{Value: rr.Failed})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Case outcomes by rule"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(ruleIDs)
	bar.AddSeries("passed", passed)
	bar.AddSeries("failed", failed)
	return bar
}
