package types

import "time"

// Bundle analysis group keys.
const (
	GroupJS     = "js"
	GroupCSS    = "css"
	GroupAssets = "assets"
)

// Severity grades a finding. Only errors affect exit status.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one check result that did not pass.
type Finding struct {
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	// Subject names the bundle or file the finding is about, if any.
	Subject string  `json:"subject,omitempty"`
	Message string  `json:"message"`
	Value   float64 `json:"value"`
	Limit   float64 `json:"limit"`
}

// StepTiming is the persisted form of a step result. Duration is in ms.
type StepTiming struct {
	Duration float64 `json:"duration"`
	Success  bool    `json:"success"`
}

// CheckGroup holds messages for one family of checks.
type CheckGroup struct {
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings,omitempty"`
}

// PerformanceChecks is the persisted check summary.
type PerformanceChecks struct {
	BundleSize CheckGroup `json:"bundleSize"`
	BuildTime  CheckGroup `json:"buildTime"`
}

// MetricsSnapshot is the single persisted state of the pipeline.
// The snapshot file is overwritten on every non-report-only run.
type MetricsSnapshot struct {
	FormatVersion     int                    `json:"formatVersion"`
	RunID             string                 `json:"runId"`
	Timestamp         time.Time              `json:"timestamp"`
	BuildTimes        map[string]StepTiming  `json:"buildTimes"`
	BundleAnalysis    map[string]BundleGroup `json:"bundleAnalysis"`
	PerformanceChecks PerformanceChecks      `json:"performanceChecks"`
}

// TotalBuildTime sums the durations of successful steps, in ms.
func (s *MetricsSnapshot) TotalBuildTime() float64 {
	var total float64
	for _, t := range s.BuildTimes {
		if t.Success {
			total += t.Duration
		}
	}
	return total
}

// TotalGzip returns the combined gzip size of js and css.
func (s *MetricsSnapshot) TotalGzip() int64 {
	return s.BundleAnalysis[GroupJS].TotalGzipped + s.BundleAnalysis[GroupCSS].TotalGzipped
}
