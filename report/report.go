// Package report renders a price quote and cost estimate for people (styled
// text) and for machines (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pixelfederation/eks-automode-estimator/cost"
	"github.com/pixelfederation/eks-automode-estimator/pricing"
)

// Report is everything one estimate run produced.
type Report struct {
	Input cost.ClusterSizingInput `json:"input"`
	Quote pricing.PriceQuote      `json:"quote"`
	Cost  cost.CostReport         `json:"cost"`
}

type styles struct {
	title, section, label, muted, good, bad, warn lipgloss.Style
}

// newStyles binds styles to w so colors are dropped when w is not a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		section: r.NewStyle().Bold(true).Underline(true),
		label:   r.NewStyle().Width(18),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		good:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981")),
		bad:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	}
}

// WriteText renders the report for a terminal.
func WriteText(w io.Writer, rep Report) error {
	s := newStyles(w)
	in, q, c := rep.Input, rep.Quote, rep.Cost

	var b strings.Builder
	line := func(label, value string) {
		b.WriteString("  " + s.label.Render(label) + value + "\n")
	}

	b.WriteString(s.title.Render("EKS Auto Mode cost estimate") + "\n\n")

	b.WriteString(s.section.Render("Cluster") + "\n")
	line("Nodes", fmt.Sprintf("%d x %s", in.NodeCount, in.InstanceType))
	line("Region", in.Region)
	line("Utilization", fmt.Sprintf("CPU %.1f%%, memory %.1f%%", in.CPUUtilization*100, in.MemUtilization*100))
	if in.MetricSource != "" {
		line("Metric source", in.MetricSource)
	}
	b.WriteString("\n")

	b.WriteString(s.section.Render("Pricing") + "\n")
	line("EC2 On-Demand", fmt.Sprintf("%s/hr %s", hourly(q.EC2Hourly), s.muted.Render("("+q.Source.String()+")")))
	fee := fmt.Sprintf("%s/hr %s", hourly(q.AutoModeFeeHourly), s.muted.Render("("+q.FeeSource.String()+")"))
	if q.FeeEstimated() && q.EC2Hourly > 0 {
		fee += " " + s.warn.Render(fmt.Sprintf("estimated as %.0f%% of the EC2 rate", q.AutoModeFeeHourly/q.EC2Hourly*100))
	}
	line("Auto Mode fee", fee)
	if q.DiscountNote != "" {
		line("Discount", q.DiscountNote)
	}
	b.WriteString("\n")

	currentEC2 := "On-Demand"
	if in.RealMonthlyCost != nil {
		currentEC2 = "billed"
	}
	b.WriteString(s.section.Render("Current (monthly)") + "\n")
	line("Control plane", usd(c.ControlPlaneMonthly))
	line("EC2", usd(c.CurrentEC2Monthly)+" "+s.muted.Render("("+currentEC2+")"))
	line("Total", usd(c.CurrentMonthly))
	b.WriteString("\n")

	b.WriteString(s.section.Render("Auto Mode (monthly)") + "\n")
	line("Nodes", fmt.Sprintf("%d %s", c.EstimatedAutoNodes, s.muted.Render(fmt.Sprintf("(waste %.0f%%, reduction %.0f%%)", c.WasteFactor*100, c.PotentialReduction*100))))
	line("Discount factor", fmt.Sprintf("%.2f", c.DiscountFactor))
	line("Control plane", usd(c.ControlPlaneMonthly))
	line("EC2", usd(c.AutoEC2Monthly))
	line("Auto Mode fee", usd(c.AutoFeeMonthly))
	line("Total", usd(c.AutoMonthly))
	b.WriteString("\n")

	b.WriteString(s.section.Render("Savings (monthly)") + "\n")
	line("Infrastructure", signed(s, c.InfraSavings))
	line("Operations", signed(s, c.OpsSavings)+" "+s.muted.Render(fmt.Sprintf("(%.0fh x %s)", cost.OpsHoursSaved, usd(cost.OpsHourlyRate))))
	line("Total", signed(s, c.TotalSavings))

	if len(c.Warnings) > 0 {
		b.WriteString("\n" + s.section.Render("Warnings") + "\n")
		for _, msg := range c.Warnings {
			b.WriteString("  " + s.warn.Render("! "+msg) + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

func usd(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", math.Abs(v))
	}
	return fmt.Sprintf("$%.2f", v)
}

func hourly(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}

func signed(s styles, v float64) string {
	if v < 0 {
		return s.bad.Render(usd(v))
	}
	return s.good.Render(usd(v))
}
