// Package tui provides lipgloss styling and the Bubble Tea report viewer
// for the kiln CLI.
//
// Rules:
//   - TUI is opt-in only (--tui flag)
//   - TUI is read-only (report show)
//   - TUI renders the same payload as json/yaml/table output
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#EA580C") // Kiln orange
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for CLI and TUI output.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// SectionStyle for section headings inside a report.
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(18)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle for passing states.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for warning and skipped states.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for failing states.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// MutedStyle for states that carry no verdict.
	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// StatBoxStyle for stat display boxes.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	// StatLabelStyle for stat labels.
	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	// StatValueStyle for stat values.
	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// StateStyle returns the style for a step, target or budget state.
// Matching is case-insensitive so budget statuses (PASSED, WARNING,
// FAILED) and step states (ok, skipped, failed) share one palette.
func StateStyle(state string) lipgloss.Style {
	switch strings.ToLower(state) {
	case "ok", "pass", "passed", "succeeded", "success", "improved":
		return SuccessStyle
	case "warn", "warning", "skipped":
		return WarningStyle
	case "fail", "failed", "error", "regressed":
		return ErrorStyle
	case "not run":
		return MutedStyle
	default:
		return ValueStyle
	}
}

// StatusLine renders "[STATE]  name  detail". The badge is padded before
// styling so columns line up with and without color.
func StatusLine(state, name, detail string, color bool) string {
	badge := fmt.Sprintf("%-10s", "["+strings.ToUpper(state)+"]")
	if color {
		badge = StateStyle(state).Bold(true).Render(badge)
	}
	line := badge + " " + name
	if detail != "" {
		line += "  " + detail
	}
	return line
}
