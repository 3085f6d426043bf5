package types

import "fmt"

// Viewport is a browsing-context size sampled during critical CSS extraction.
type Viewport struct {
	Width  int `json:"width" yaml:"width" msgpack:"width"`
	Height int `json:"height" yaml:"height" msgpack:"height"`
}

// Label returns the "WxH" form used in logs and fragment attribution.
func (v Viewport) Label() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// CriticalCSSFragment is the CSS captured for one viewport.
// Error is set when extraction failed for that viewport; CSS is then empty.
type CriticalCSSFragment struct {
	Viewport string `json:"viewport"`
	CSS      string `json:"-"`
	Size     int    `json:"size"`
	// CoverageBytes and DOMBytes split Size by origin.
	CoverageBytes int    `json:"coverage_bytes"`
	DOMBytes      int    `json:"dom_bytes"`
	Error         string `json:"error,omitempty"`
}

// OK reports whether the fragment was extracted successfully.
func (f CriticalCSSFragment) OK() bool {
	return f.Error == ""
}

// CriticalCSSBundle is the merged, deduplicated result across viewports.
type CriticalCSSBundle struct {
	CSS       string                `json:"-"`
	Minified  string                `json:"-"`
	Rules     int                   `json:"rules"`
	Size      int                   `json:"size"`
	MinSize   int                   `json:"min_size"`
	Fragments []CriticalCSSFragment `json:"fragments"`
	// OverBudget is advisory: the minified size exceeded the soft ceiling.
	OverBudget bool `json:"over_budget"`
}
