package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/headlines/internal/search"
	"github.com/pders01/headlines/internal/storage"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4")).
			MarginBottom(1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1D3"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().Bold(true)

	cellStyle = lipgloss.NewStyle().PaddingRight(2)
)

func renderRuns(runs []*storage.Run, tracked int) string {
	if len(runs) == 0 {
		return dimStyle.Render("No runs recorded yet.")
	}

	dates := []string{titleStyle.Render("DATE")}
	totals := []string{titleStyle.Render("TOTAL")}
	oks := []string{titleStyle.Render("OK")}
	fails := []string{titleStyle.Render("FAILED")}
	took := []string{titleStyle.Render("TOOK")}

	for _, r := range runs {
		dates = append(dates, r.Date)
		totals = append(totals, fmt.Sprintf("%d", r.Total))
		oks = append(oks, okStyle.Render(fmt.Sprintf("%d", r.Succeeded)))
		failed := fmt.Sprintf("%d", r.Failed)
		if r.Failed > 0 {
			failed = failStyle.Render(failed)
		}
		fails = append(fails, failed)
		took = append(took, r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String())
	}

	table := lipgloss.JoinHorizontal(lipgloss.Top,
		cellStyle.Render(strings.Join(dates, "\n")),
		cellStyle.Render(strings.Join(totals, "\n")),
		cellStyle.Render(strings.Join(oks, "\n")),
		cellStyle.Render(strings.Join(fails, "\n")),
		cellStyle.Render(strings.Join(took, "\n")),
	)

	header := headerStyle.Render(fmt.Sprintf("Recent runs (%d URLs tracked)", tracked))
	return lipgloss.JoinVertical(lipgloss.Left, header, table)
}

func renderResults(query string, results []*search.Result) string {
	if len(results) == 0 {
		return dimStyle.Render(fmt.Sprintf("No articles match %q.", query))
	}

	blocks := []string{headerStyle.Render(fmt.Sprintf("%d results for %q", len(results), query))}
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		lines := []string{
			titleStyle.Render(fmt.Sprintf("%d. %s", i+1, title)),
			dimStyle.Render(fmt.Sprintf("%s  %s", r.Date, r.URL)),
		}
		if r.Authors != "" {
			lines = append(lines, "by "+r.Authors)
		}
		if r.Snippet != "" {
			lines = append(lines, lipgloss.NewStyle().Width(80).Render(r.Snippet))
		}
		blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, lines...)+"\n")
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}
