package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Protocol-Lattice/docqa"
	"github.com/Protocol-Lattice/docqa/pkg/uploads"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

func renderAnswer(res docqa.QuestionResult, sources bool) string {
	var b strings.Builder
	b.WriteString(boxStyle.Render(res.Response))
	if sources && len(res.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("sources: " + strings.Join(res.Sources, ", ")))
	}
	return b.String()
}

func renderReport(rep uploads.Report) string {
	lines := []string{
		titleStyle.Render("Index rebuilt"),
		fmt.Sprintf("files:  %d", rep.Files),
		fmt.Sprintf("pages:  %d", rep.Pages),
		fmt.Sprintf("chunks: %d", rep.Chunks),
		dimStyle.Render(fmt.Sprintf("%s · %s · %d dims", rep.Manifest.Name, rep.Manifest.Model, rep.Manifest.Dimensions)),
	}
	if len(rep.Skipped) > 0 {
		lines = append(lines, errorStyle.Render("skipped: "+strings.Join(rep.Skipped, ", ")))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
