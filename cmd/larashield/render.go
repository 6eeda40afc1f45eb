package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/julianshen/larashield/internal/security"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
)

const maxWrap = 120

// terminalWidth reports the width of out when it is a terminal.
func terminalWidth(out io.Writer) (int, bool) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80, true
	}
	return min(width, maxWrap), true
}

// renderMarkdown styles a markdown report for the terminal.
func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating glamour renderer: %w", err)
	}
	return r.Render(md)
}

// statusLine summarises a report in one line.
func statusLine(report *security.Report) string {
	s := report.Summary()
	parts := []string{
		passStyle.Render(fmt.Sprintf("%d passed", s.Passed)),
		warnStyle.Render(fmt.Sprintf("%d warning", s.Warning)),
		failStyle.Render(fmt.Sprintf("%d failed", s.Failed)),
	}
	if s.Errored > 0 {
		parts = append(parts, failStyle.Render(fmt.Sprintf("%d error", s.Errored)))
	}
	parts = append(parts,
		mutedStyle.Render(fmt.Sprintf("%d skipped", s.Skipped)),
		mutedStyle.Render(fmt.Sprintf("%d issues in %s", s.Issues, report.Duration.Round(1e6))),
	)
	return strings.Join(parts, mutedStyle.Render(" · "))
}

func printStatus(w io.Writer, report *security.Report) {
	fmt.Fprintln(w, statusLine(report))
}
