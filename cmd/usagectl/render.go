package main

import (
	"fmt"
	"io"
	"strconv"

	"usagehub/internal/leaderboard"
	"usagehub/internal/prices"
	"usagehub/internal/report"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignRight},
			},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(header)
	return table
}

func renderLeaderboard(w io.Writer, date string, items []leaderboard.Item) error {
	fmt.Fprintf(w, "Leaderboard %s\n", date)
	if len(items) == 0 {
		fmt.Fprintln(w, "no usage")
		return nil
	}

	table := newTable(w, "Rank", "Token", "Cost (CNY)", "Tokens", "Requests")
	for _, it := range items {
		if err := table.Append([]string{
			strconv.Itoa(it.Rank),
			it.TokenName,
			fmt.Sprintf("%.2f", it.TotalCostCNY),
			formatCount(it.TotalTokens),
			formatCount(it.TotalRequests),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderPrices(w io.Writer, doc prices.Document) error {
	if len(doc) == 0 {
		fmt.Fprintln(w, "no manual prices")
		return nil
	}
	table := newTable(w, "Model", "Input", "Output")
	for _, model := range doc.Keys() {
		p := doc[model]
		if err := table.Append([]string{model, formatPrice(p.Input), formatPrice(p.Output)}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderReconcile(w io.Writer, r prices.Report) error {
	fmt.Fprintf(w, "Conflicts: %d\n", len(r.Conflicts))
	if len(r.Conflicts) > 0 {
		table := newTable(w, "Model", "Local In", "Local Out", "Remote In", "Remote Out")
		for _, c := range r.Conflicts {
			if err := table.Append([]string{c.Model,
				formatPrice(c.Local.Input), formatPrice(c.Local.Output),
				formatPrice(c.Remote.Input), formatPrice(c.Remote.Output),
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "New models: %d\n", len(r.NewModels))
	if len(r.NewModels) > 0 {
		table := newTable(w, "Model", "Input", "Output")
		for _, m := range r.NewModels {
			if err := table.Append([]string{m.Model, formatPrice(m.Price.Input), formatPrice(m.Price.Output)}); err != nil {
				return err
			}
		}
		return table.Render()
	}
	return nil
}

func renderResult(w io.Writer, r report.Result) error {
	switch {
	case r.Success:
		reported := 0
		if r.TokensReported != nil {
			reported = *r.TokensReported
		}
		_, err := fmt.Fprintf(w, "sent report for %s: %d tokens, truncated=%t\n", r.Date, reported, r.Truncated)
		return err
	case r.Reason != "":
		_, err := fmt.Fprintf(w, "skipped: %s\n", r.Reason)
		return err
	default:
		_, err := fmt.Fprintf(w, "failed: %s\n", r.Error)
		return err
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatCount 千位分隔
func formatCount(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
