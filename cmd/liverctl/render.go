package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Skufu/liverscan/internal/analysis"
	"github.com/Skufu/liverscan/internal/interpret"
)

const barWidth = 30

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	disclaimerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	riskStyles = map[interpret.RiskBucket]lipgloss.Style{
		interpret.RiskLow:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		interpret.RiskMedium: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		interpret.RiskHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
)

// bar renders p in [0, 1] as a fixed-width ASCII bar.
func bar(p float64, width int) string {
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(math.Round(p * float64(width)))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func renderReport(r *analysis.Report) string {
	in := r.Interpretation
	var b strings.Builder

	b.WriteString(titleStyle.Render("Liver pattern analysis"))
	b.WriteString(mutedStyle.Render("  " + r.ID))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Primary pattern:  %s (%.1f%%)\n", in.Primary.Label, in.Primary.Probability*100)
	fmt.Fprintf(&b, "Secondary:        %s (%.1f%%)\n", in.Secondary.Label, in.Secondary.Probability*100)
	fmt.Fprintf(&b, "Risk tier:        %s %s\n\n",
		riskStyles[in.Risk].Render(strings.ToUpper(in.Risk.String())),
		mutedStyle.Render(fmt.Sprintf("(%s policy, signal %.2f)", in.Policy, in.Signal)))

	b.WriteString(sectionStyle.Render("Class probabilities"))
	b.WriteString("\n")
	for _, cp := range in.Ranking {
		fmt.Fprintf(&b, "  %-26s %s %5.1f%%\n", cp.Label, bar(cp.Probability, barWidth), cp.Probability*100)
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Pattern groups"))
	b.WriteString("\n")
	for _, g := range []struct {
		name string
		p    float64
	}{
		{"Healthy", in.Groups.Healthy},
		{"Acute (cirrhosis, hepatitis)", in.Groups.Acute},
		{"Chronic (fibrosis, suspected)", in.Groups.Chronic},
	} {
		fmt.Fprintf(&b, "  %-30s %s %5.1f%%\n", g.name, bar(g.p, barWidth-4), g.p*100)
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Largest lab deviations"))
	b.WriteString(mutedStyle.Render(" (value / mean of all inputs)"))
	b.WriteString("\n")
	for _, d := range in.Deviations.Top {
		fmt.Fprintf(&b, "  %-28s %10.2f  ratio %6.2f\n", d.Feature, d.Value, d.Ratio)
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Recommendation"))
	b.WriteString("\n")
	rec := in.Recommendation
	fmt.Fprintf(&b, "  %s\n  %s\n  %s\n\n", rec.Headline, rec.Detail, rec.Action)

	b.WriteString(disclaimerStyle.Render(in.Disclaimer))
	b.WriteString("\n")
	return b.String()
}
