package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/kiln/types"
)

// ViewReport is the report show view.
const ViewReport = "report_show"

// Run starts the TUI for the given view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	snap, ok := data.(*types.MetricsSnapshot)
	if !ok {
		return fmt.Errorf("invalid data type %T for %s", data, viewType)
	}
	return RunReportTUI(snap)
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewReport}
}

// RenderReportStatic renders the report without the interactive viewer.
func RenderReportStatic(snap *types.MetricsSnapshot) string {
	return lipgloss.NewStyle().Padding(1, 2).Render(RenderReport(snap))
}
