package budget

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/pithecene-io/kiln/iox"
	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// Status is the overall outcome of a budget check.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusWarning Status = "WARNING"
	StatusFailed  Status = "FAILED"
)

// Report is the result of one enforcement pass.
type Report struct {
	Timestamp time.Time            `json:"timestamp"`
	Status    Status               `json:"status"`
	Bundles   []types.BundleRecord `json:"bundles"`
	Errors    []types.Finding      `json:"errors"`
	Warnings  []types.Finding      `json:"warnings"`
}

func statusOf(r *Report) Status {
	switch {
	case len(r.Errors) > 0:
		return StatusFailed
	case len(r.Warnings) > 0:
		return StatusWarning
	default:
		return StatusPassed
	}
}

// Err returns ErrBudgetExceeded when the report failed.
func (r *Report) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	return fmt.Errorf("%w: %d error(s)", ErrBudgetExceeded, len(r.Errors))
}

// WriteTable prints one row per bundle followed by the findings.
func WriteTable(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BUNDLE\tCATEGORY\tSIZE\tBUDGET\tUSAGE\tGZIP\tGZIP BUDGET\tGZIP USAGE\tSTATUS")
	for _, b := range r.Bundles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.Name, b.Category,
			sizing.FormatBytes(b.Size), limitString(b.Budget), percent(b.Usage, b.Budget),
			sizing.FormatBytes(b.GzipSize), limitString(b.GzipBudget), percent(b.GzipUsage, b.GzipBudget),
			bundleStatus(r, b.Name))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, f := range r.Errors {
		fmt.Fprintf(w, "error: %s\n", f.Message)
	}
	for _, f := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", f.Message)
	}
	_, err := fmt.Fprintf(w, "budget status: %s\n", r.Status)
	return err
}

func bundleStatus(r *Report, name string) Status {
	for _, b := range r.Bundles {
		if b.Name != name {
			continue
		}
		if b.OverBudget || b.OverGzipBudget {
			return StatusFailed
		}
	}
	for _, f := range r.Warnings {
		if f.Subject == name {
			return StatusWarning
		}
	}
	return StatusPassed
}

func limitString(n int64) string {
	if n <= 0 {
		return "-"
	}
	return sizing.FormatBytes(n)
}

func percent(usage float64, limit int64) string {
	if limit <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", usage*100)
}

// WriteReport writes r as reports/budget-<timestamp>.json under dir and
// returns the path.
func WriteReport(dir string, r *Report) (string, error) {
	path := filepath.Join(dir, "budget-"+r.Timestamp.Format("20060102-150405")+".json")
	if err := iox.WriteJSONAtomic(path, r); err != nil {
		return "", fmt.Errorf("write budget report: %w", err)
	}
	return path, nil
}
