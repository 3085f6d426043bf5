package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// keyMap defines key bindings. Scrolling keys are handled by the viewport.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// ReportModel is a scrollable Bubble Tea view of a metrics snapshot.
type ReportModel struct {
	snap     *types.MetricsSnapshot
	viewport viewport.Model
	ready    bool
	quitting bool
}

// NewReportModel creates a report model.
func NewReportModel(snap *types.MetricsSnapshot) ReportModel {
	return ReportModel{snap: snap}
}

// Init implements tea.Model.
func (m ReportModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(RenderReport(m.snap))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ReportModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}
	help := HelpStyle.Render(fmt.Sprintf("↑/↓ scroll • q quit • %3.f%%", m.viewport.ScrollPercent()*100))
	return m.viewport.View() + "\n" + help
}

// RenderReport renders a snapshot as styled text: headline stat boxes,
// step timings, bundle groups and recorded checks.
func RenderReport(snap *types.MetricsSnapshot) string {
	if snap == nil {
		return MutedStyle.Render("no snapshot recorded")
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Performance Report"))
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Run") + ValueStyle.Render(snap.RunID) + "\n")
	b.WriteString(LabelStyle.Render("Recorded") + ValueStyle.Render(snap.Timestamp.Format("2006-01-02 15:04:05")) + "\n\n")

	boxes := []string{
		renderStatBox("Build time", fmt.Sprintf("%.2fs", snap.TotalBuildTime()/1000), highlightColor),
		renderStatBox("JS gzip", sizing.FormatBytes(snap.BundleAnalysis[types.GroupJS].TotalGzipped), highlightColor),
		renderStatBox("CSS gzip", sizing.FormatBytes(snap.BundleAnalysis[types.GroupCSS].TotalGzipped), highlightColor),
		renderStatBox("Total gzip", sizing.FormatBytes(snap.TotalGzip()), primaryColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	b.WriteString(SectionStyle.Render("Steps"))
	b.WriteString("\n")
	steps := make([]string, 0, len(snap.BuildTimes))
	for name := range snap.BuildTimes {
		steps = append(steps, name)
	}
	sort.Strings(steps)
	for _, name := range steps {
		st := snap.BuildTimes[name]
		state := "ok"
		if !st.Success {
			state = "failed"
		}
		b.WriteString(StatusLine(state, fmt.Sprintf("%-12s", name), fmt.Sprintf("%.0fms", st.Duration), true))
		b.WriteString("\n")
	}

	for _, group := range []string{types.GroupJS, types.GroupCSS, types.GroupAssets} {
		g, ok := snap.BundleAnalysis[group]
		if !ok {
			continue
		}
		b.WriteString("\n")
		b.WriteString(SectionStyle.Render(fmt.Sprintf("Bundles: %s (%d files, %s -> %s)",
			group, len(g.Files), sizing.FormatBytes(g.TotalOriginal), sizing.FormatBytes(g.TotalGzipped))))
		b.WriteString("\n")
		for _, f := range g.Files {
			b.WriteString(fmt.Sprintf("  %-40s %10s %10s\n", f.Path, sizing.FormatBytes(f.Size), sizing.FormatBytes(f.GzipSize)))
		}
	}

	b.WriteString("\n")
	b.WriteString(SectionStyle.Render("Checks"))
	b.WriteString("\n")
	checks := snap.PerformanceChecks
	issues := append(append([]string(nil), checks.BuildTime.Issues...), checks.BundleSize.Issues...)
	warnings := append(append([]string(nil), checks.BuildTime.Warnings...), checks.BundleSize.Warnings...)
	if len(issues) == 0 && len(warnings) == 0 {
		b.WriteString(StatusLine("passed", "all targets met", "", true))
		b.WriteString("\n")
	}
	for _, msg := range issues {
		b.WriteString(StatusLine("error", msg, "", true))
		b.WriteString("\n")
	}
	for _, msg := range warnings {
		b.WriteString(StatusLine("warning", msg, "", true))
		b.WriteString("\n")
	}
	return b.String()
}

func renderStatBox(label, value string, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunReportTUI runs the report viewer.
func RunReportTUI(snap *types.MetricsSnapshot) error {
	p := tea.NewProgram(NewReportModel(snap), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
