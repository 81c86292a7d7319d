package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/services"
)

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
	errColor  = color.New(color.FgRed, color.Bold).SprintFunc()
	dimColor  = color.New(color.Faint).SprintFunc()
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSnapshot(w io.Writer, snap *models.AnalyticsSnapshot) {
	if snap == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  trident analytics  %s\n", dimColor("cycle "+snap.CycleID))
	fmt.Fprintln(w, "  ────────────────────────────────────────")

	if snap.Failed() {
		fmt.Fprintf(w, "  %s\n\n", errColor(snap.Error))
		return
	}

	ok := len(models.AllSources) - len(snap.Degraded)
	sources := okColor(fmt.Sprintf("%d/%d ok", ok, len(models.AllSources)))
	if len(snap.Degraded) > 0 {
		names := make([]string, 0, len(snap.Degraded))
		for _, s := range snap.Degraded {
			names = append(names, string(s))
		}
		sources = warnColor(fmt.Sprintf("%d/%d ok, degraded: %s", ok, len(models.AllSources), strings.Join(names, ", ")))
	}
	fmt.Fprintf(w, "  Sources:       %s\n", sources)

	if !snap.HasData {
		fmt.Fprintf(w, "  %s\n\n", warnColor("No analytics data available yet."))
		return
	}

	if m := snap.Metrics; m != nil && m.Latency != nil {
		fmt.Fprintf(w, "  Latency:       mean %s  p95 %s  p99 %s\n",
			floatOrNA(m.Latency.Mean, "ms"), floatOrNA(m.Latency.P95, "ms"), floatOrNA(m.Latency.P99, "ms"))
	}
	if m := snap.Metrics; m != nil && m.Throughput != nil {
		fmt.Fprintf(w, "  Throughput:    %s  total %s  failed %s\n",
			floatOrNA(m.Throughput.RequestsPerSecond, " req/s"), intOrNA(m.Throughput.TotalRequests), intOrNA(m.Throughput.TotalFailed))
	}
	if p := snap.ModelPerformance; p != nil {
		fmt.Fprintf(w, "  Model:         anomalies %s / %s  rate %s  avg score %s  %s\n",
			intOrNA(p.AnomalyCount), intOrNA(p.TotalPredictions), floatOrNA(p.AnomalyRatePercent, "%"),
			floatOrNA(p.AverageAnomalyScore, ""), dimColor("("+string(snap.PerformanceSource)+")"))
	}

	c := snap.Classification
	fmt.Fprintf(w, "  Alerts:        %d total, %d with feedback\n", c.Total, c.TotalWithFeedback)
	fmt.Fprintf(w, "  Accuracy:      %.1f%%   precision %.1f%%  recall %.1f%%  f1 %.1f%%\n", c.Accuracy, c.Precision, c.Recall, c.F1Score)
	fpRate := fmt.Sprintf("%.1f%%", c.FPRate)
	if c.FPRate > 10 {
		fpRate = warnColor(fpRate)
	}
	fmt.Fprintf(w, "  FP rate:       %s\n", fpRate)
	for _, cell := range snap.ConfusionMatrix {
		fmt.Fprintf(w, "    %-16s %d\n", cell.Name, cell.Value)
	}

	fmt.Fprintf(w, "  Baselines:     %d\n", len(snap.Baselines))
	if len(snap.BaselineStats) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "    CONTEXT\tMETRICS\tVERSION\tUPDATED")
		for _, b := range snap.BaselineStats {
			fmt.Fprintf(tw, "    %s\t%d\t%s\t%s\n", b.Context, b.Metrics, b.Version, b.Updated)
		}
		_ = tw.Flush()
	}
	fmt.Fprintln(w)
}

func renderHistory(w io.Writer, view services.HistoryView) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  refresh history  %s\n", dimColor(fmt.Sprintf("%d cycles", len(view.Entries))))
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	if len(view.Entries) == 0 {
		fmt.Fprintf(w, "  %s\n\n", dimColor("No cycles recorded."))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  COMPLETED\tOUTCOME\tALERTS\tFEEDBACK\tACCURACY\tFP RATE")
	for _, e := range view.Entries {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%.1f%%\t%.1f%%\n",
			e.CompletedAt.Local().Format("2006-01-02 15:04:05"), outcomeLabel(e.Outcome),
			e.AlertCount, e.Classification.TotalWithFeedback, e.Classification.Accuracy, e.Classification.FPRate)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n  Smoothed FP rate: %.2f%%\n", view.Trend.Smoothed)
	for _, s := range view.Trend.Spikes {
		fmt.Fprintf(w, "  %s %s FP rate %.1f%% (z=%.2f)\n", warnColor("spike"), s.At.Local().Format("2006-01-02 15:04:05"), s.FPRate, s.Score)
	}
	if len(view.Degradations) > 0 {
		fmt.Fprintln(w, "\n  Recurring degradations:")
		for _, d := range view.Degradations {
			line := fmt.Sprintf("    %-14s %d failures (%.0f%%)", d.Source, d.Failures, d.Prevalence*100)
			if d.Streak > 1 {
				line += warnColor(fmt.Sprintf("  failing for last %d cycles", d.Streak))
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(w)
}

func outcomeLabel(outcome string) string {
	switch outcome {
	case models.OutcomeSuccess:
		return okColor(outcome)
	case models.OutcomePartial:
		return warnColor(outcome)
	default:
		return errColor(outcome)
	}
}

func floatOrNA(v *float64, unit string) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%s", *v, unit)
}

func intOrNA(v *int64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *v)
}
