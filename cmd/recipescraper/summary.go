package main

import (
	"io"
	"sort"
	"time"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// printSummary writes one row per search term and a total.
func printSummary(w io.Writer, statuses []types.RunStatus) {
	sorted := append([]types.RunStatus(nil), statuses...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SearchTerm < sorted[j].SearchTerm
	})

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Term", "Pages", "Items", "Skipped", "Errors", "Dropped", "Images", "Duration"})

	total := types.RunStatus{SearchTerm: "total"}
	for _, s := range sorted {
		t.AppendRow(table.Row{s.SearchTerm, s.NrPages, s.NrItems, s.NrSkipped, s.NrErrors, s.NrDropped, s.NrImages, duration(s)})
		total.Add(s)
	}
	t.AppendFooter(table.Row{total.SearchTerm, total.NrPages, total.NrItems, total.NrSkipped, total.NrErrors, total.NrDropped, total.NrImages, ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.SetRowPainter(rowPainter)
	t.Render()
}

// rowPainter colors terms with errors red and terms without items yellow.
func rowPainter(row table.Row) text.Colors {
	errs, _ := row[4].(int)
	items, _ := row[2].(int)
	switch {
	case errs > 0:
		return text.Colors{text.FgRed}
	case items == 0:
		return text.Colors{text.FgYellow}
	}
	return nil
}

func duration(s types.RunStatus) string {
	if s.LastScrapeStart.IsZero() || s.LastScrapeEnd.IsZero() {
		return ""
	}
	return s.LastScrapeEnd.Sub(s.LastScrapeStart).Round(time.Second).String()
}
