package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"costrisk/api"
	"costrisk/decision/cost"
	"costrisk/decision/estimation"
	"costrisk/decision/policy"
	"costrisk/decision/probabilistic"
	"costrisk/decision/regression"
	"costrisk/decision/seasonality"
)

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

type analysisOutput struct {
	Analysis *estimation.Analysis     `json:"analysis"`
	Policy   *policy.EvaluationResult `json:"policy,omitempty"`
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const (
	boxTop    = "╔══════════════════════════════════════════════════════════════╗"
	boxDivide = "╠══════════════════════════════════════════════════════════════╣"
	boxBottom = "╚══════════════════════════════════════════════════════════════╝"
)

func boxRow(w io.Writer, label, value string) {
	fmt.Fprintf(w, "║  %-22s%-38s║\n", label, truncate(value, 38))
}

func boxLine(w io.Writer, text string) {
	fmt.Fprintf(w, "║  %-60s║\n", truncate(text, 60))
}

func outputAnalysisTable(w io.Writer, a *estimation.Analysis, pol *policy.EvaluationResult) error {
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxTop)
	boxLine(w, "COST RISK ANALYSIS")
	fmt.Fprintln(w, boxDivide)
	boxRow(w, "Monthly Cost (P50):", "$"+a.MonthlyCostP50.StringFixed(2))
	boxRow(w, "Monthly Cost (P90):", "$"+a.MonthlyCostP90.StringFixed(2))
	boxRow(w, "Cost Delta:", cost.FormatDelta(a.CostDelta.InexactFloat64()))
	boxRow(w, "Highest Severity:", strings.ToUpper(string(a.HighestSeverity)))
	boxRow(w, "Confidence:", fmt.Sprintf("%.0f%%", a.Confidence*100))
	boxRow(w, "Resources:", fmt.Sprintf("%d analyzed, %d estimated, %d seasonal",
		a.ResourcesAnalyzed, a.ResourcesEstimated, a.ResourcesSeasonal))

	if sim := a.Simulation; sim != nil {
		fmt.Fprintln(w, boxDivide)
		boxLine(w, fmt.Sprintf("MONTE CARLO (%d runs, seed %d)", sim.RunCount, sim.Seed))
		fmt.Fprintln(w, boxDivide)
		boxRow(w, "Mean / Median:", fmt.Sprintf("%s / %s", cost.FormatUSD(sim.Mean), cost.FormatUSD(sim.Median)))
		boxRow(w, "P5 - P95:", fmt.Sprintf("%s - %s", cost.FormatUSD(sim.Percentiles[5]), cost.FormatUSD(sim.Percentiles[95])))
		boxRow(w, "VaR95 / CVaR95:", fmt.Sprintf("%s / %s", cost.FormatUSD(sim.VaR95), cost.FormatUSD(sim.CVaR95)))
		boxRow(w, "Shape:", string(sim.Shape))
	}

	fmt.Fprintln(w, boxDivide)
	boxLine(w, "TOP REGRESSIONS")
	fmt.Fprintln(w, boxDivide)

	maxRows := 5
	if len(a.Resources) < maxRows {
		maxRows = len(a.Resources)
	}
	for _, ra := range a.Resources[:maxRows] {
		d := ra.Detection
		fmt.Fprintf(w, "║  %-8s %3d  %-30s %15s ║\n",
			strings.ToUpper(string(d.Severity)), d.SeverityScore,
			truncate(ra.ResourceID, 30), cost.FormatDelta(d.CostDelta))
	}

	if pol != nil {
		fmt.Fprintln(w, boxDivide)
		boxRow(w, "Policy Result:", strings.ToUpper(string(pol.Decision)))
		for _, v := range pol.Violations {
			boxLine(w, "x "+v.Message)
		}
		for _, warn := range pol.Warnings {
			boxLine(w, "! "+warn.Message)
		}
	}
	for _, warn := range a.Warnings {
		boxLine(w, "~ "+warn)
	}

	fmt.Fprintln(w, boxBottom)
	return nil
}

func outputAnalysisMarkdown(w io.Writer, a *estimation.Analysis, pol *policy.EvaluationResult) error {
	fmt.Fprintln(w, "## Cost Risk Report")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Metric | Value |")
	fmt.Fprintln(w, "|--------|-------|")
	fmt.Fprintf(w, "| **Monthly Cost (P50)** | $%s |\n", a.MonthlyCostP50.StringFixed(2))
	fmt.Fprintf(w, "| **Monthly Cost (P90)** | $%s |\n", a.MonthlyCostP90.StringFixed(2))
	fmt.Fprintf(w, "| **Cost Delta** | %s |\n", cost.FormatDelta(a.CostDelta.InexactFloat64()))
	fmt.Fprintf(w, "| **Highest Severity** | %s |\n", a.HighestSeverity)
	fmt.Fprintf(w, "| **Confidence** | %.0f%% |\n", a.Confidence*100)
	if sim := a.Simulation; sim != nil {
		fmt.Fprintf(w, "| **VaR95** | %s |\n", cost.FormatUSD(sim.VaR95))
		fmt.Fprintf(w, "| **CVaR95** | %s |\n", cost.FormatUSD(sim.CVaR95))
	}
	if pol != nil {
		fmt.Fprintf(w, "| **Policy Result** | %s |\n", pol.Decision)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Resources")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Resource | Regression | Severity | Delta | P50 | P90 |")
	fmt.Fprintln(w, "|----------|------------|----------|-------|-----|-----|")
	for _, ra := range a.Resources {
		p50, p90 := "-", "-"
		if ra.Prediction != nil {
			p50 = cost.FormatUSD(ra.Prediction.P50)
			p90 = cost.FormatUSD(ra.Prediction.P90)
		}
		fmt.Fprintf(w, "| %s | %s | %s (%d) | %s | %s | %s |\n",
			ra.ResourceID, ra.Detection.Regression.Label(), ra.Detection.Severity,
			ra.Detection.SeverityScore, cost.FormatDelta(ra.Detection.CostDelta), p50, p90)
	}

	if pol != nil && len(pol.Violations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Policy Violations")
		fmt.Fprintln(w)
		for _, v := range pol.Violations {
			fmt.Fprintf(w, "- **%s**: %s\n", v.PolicyName, v.Message)
		}
	}

	warnings := append([]string(nil), a.Warnings...)
	if pol != nil {
		for _, warn := range pol.Warnings {
			warnings = append(warnings, warn.Message)
		}
	}
	if len(warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Warnings")
		fmt.Fprintln(w)
		for _, warn := range warnings {
			fmt.Fprintf(w, "- %s\n", warn)
		}
	}
	return nil
}

func outputDetections(w io.Writer, detections []regression.Detection) error {
	if len(detections) == 0 {
		fmt.Fprintln(w, "No changed resources.")
		return nil
	}
	fmt.Fprintf(w, "%-9s %5s  %-22s %-40s %s\n", "SEVERITY", "SCORE", "REGRESSION", "RESOURCE", "DELTA")
	for _, d := range detections {
		fmt.Fprintf(w, "%-9s %5d  %-22s %-40s %s\n",
			d.Severity, d.SeverityScore, d.Regression, truncate(d.ResourceID, 40), cost.FormatDelta(d.CostDelta))
	}
	return nil
}

func outputPrediction(w io.Writer, est probabilistic.Estimate) error {
	fmt.Fprintf(w, "%s (%s)\n", est.ResourceID, est.ResourceType)
	fmt.Fprintf(w, "  P10 %s  P50 %s  P90 %s  P99 %s\n",
		cost.FormatUSD(est.P10), cost.FormatUSD(est.P50), cost.FormatUSD(est.P90), cost.FormatUSD(est.P99))
	fmt.Fprintf(w, "  std dev %s, CoV %.3f, risk %s\n", cost.FormatUSD(est.StdDev), est.CoefficientOfVariation, est.RiskLevel)
	for _, f := range est.Factors {
		fmt.Fprintf(w, "  - %s: %s (impact %.2f)\n", f.Name, f.Description, f.Impact)
	}
	return nil
}

func outputSimulation(w io.Writer, resp api.SimulateResponse) error {
	r := resp.Result
	fmt.Fprintf(w, "Runs: %d  Seed: %d  Shape: %s\n", r.RunCount, r.Seed, r.Shape)
	fmt.Fprintf(w, "Mean %s  Median %s  StdDev %s  Min %s  Max %s\n",
		cost.FormatUSD(r.Mean), cost.FormatUSD(r.Median), cost.FormatUSD(r.StdDev),
		cost.FormatUSD(r.Min), cost.FormatUSD(r.Max))

	keys := make([]int, 0, len(r.Percentiles))
	for p := range r.Percentiles {
		keys = append(keys, p)
	}
	sort.Ints(keys)
	parts := make([]string, len(keys))
	for i, p := range keys {
		parts[i] = fmt.Sprintf("P%d %s", p, cost.FormatUSD(r.Percentiles[p]))
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
	fmt.Fprintf(w, "VaR95 %s  CVaR95 %s\n", cost.FormatUSD(r.VaR95), cost.FormatUSD(r.CVaR95))
	if resp.BreachProbability != nil {
		fmt.Fprintf(w, "P(total > budget) = %.1f%%\n", *resp.BreachProbability*100)
	}

	fmt.Fprintln(w)
	peak := 0
	for _, b := range r.Histogram {
		if b.Count > peak {
			peak = b.Count
		}
	}
	for _, b := range r.Histogram {
		bar := 0
		if peak > 0 {
			bar = b.Count * 40 / peak
		}
		fmt.Fprintf(w, "%12s - %-12s %6d %s\n",
			cost.FormatUSD(b.Lower), cost.FormatUSD(b.Upper), b.Count, strings.Repeat("#", bar))
	}
	return nil
}

func outputSeasonality(w io.Writer, results map[string]seasonality.Analysis) error {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := results[id]
		fmt.Fprintf(w, "%s: %d points over %d days, factor %.3f\n", id, a.DataPoints, a.SpanDays, a.AdjustmentFactor)
		if !a.HasSeasonality {
			fmt.Fprintln(w, "  no seasonality detected")
			continue
		}
		for _, p := range a.Patterns {
			fmt.Fprintf(w, "  [%.2f] %s\n", p.Strength, p.Description)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
