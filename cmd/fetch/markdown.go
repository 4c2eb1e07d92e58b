package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"portfoliodash/internal/aggregate"
	"portfoliodash/internal/refresh"
)

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

func quotesMarkdown(symbols []string, res map[string]refresh.Result) string {
	var b strings.Builder
	b.WriteString("# Quotes\n\n")
	b.WriteString("| Symbol | CMP | P/E | EPS | Source |\n")
	b.WriteString("|:---|---:|---:|---:|:---|\n")
	for _, s := range symbols {
		r, ok := res[s]
		if !ok {
			continue
		}
		src := "live"
		switch {
		case r.Error:
			src = "**error**"
		case r.Cached:
			src = "cache"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", s, num(r.CMP), num(r.PERatio), num(r.Earnings), src)
	}
	return b.String()
}

func summaryMarkdown(s aggregate.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Portfolio (%s)\n\n", s.Currency)
	fmt.Fprintf(&b, "- Investment: %s\n", s.Display.Investment)
	fmt.Fprintf(&b, "- Present value: %s\n", s.Display.PresentValue)
	fmt.Fprintf(&b, "- Gain/Loss: %s\n", s.Display.GainLoss)
	if s.Errors > 0 {
		fmt.Fprintf(&b, "- Unpriced holdings: %d\n", s.Errors)
	}
	b.WriteString("\n")

	for _, sec := range s.Sectors {
		fmt.Fprintf(&b, "## %s (%s%% of investment)\n\n", sec.Name, sec.InvestmentPercent.StringFixed(1))
		b.WriteString("| Holding | Qty | Buy | CMP | Value | Gain/Loss | % |\n")
		b.WriteString("|:---|---:|---:|---:|---:|---:|---:|\n")
		for _, r := range sec.Holdings {
			value, gl := "-", "-"
			if r.PresentValue.Valid {
				value = aggregate.Format(r.PresentValue.Decimal, s.Currency)
			}
			if r.GainLoss.Valid {
				gl = aggregate.Format(r.GainLoss.Decimal, s.Currency)
			}
			cmp := "-"
			if r.CMP.Valid {
				cmp = r.CMP.Decimal.StringFixed(2)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
				r.Symbol, r.Quantity.String(), r.PurchasePrice.StringFixed(2), cmp, value, gl, r.PortfolioPercent.StringFixed(2))
		}
		fmt.Fprintf(&b, "| **Total** | | | | **%s** | **%s** | |\n\n", sec.Display.PresentValue, sec.Display.GainLoss)
	}

	if len(s.Distribution) > 0 {
		b.WriteString("## Distribution\n\n")
		for _, d := range s.Distribution {
			fmt.Fprintf(&b, "- %s: %s%%\n", d.Name, d.Percent.StringFixed(1))
		}
	}
	return b.String()
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
