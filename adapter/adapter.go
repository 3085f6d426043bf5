// Package adapter defines the completion-notification boundary.
//
// Adapters publish a build_completed event to a downstream system (a deploy
// hook, a dashboard, a chat relay) once the pipeline finishes, whatever the
// outcome.
package adapter

import "context"

// EventTypeBuildCompleted is the only event type published.
const EventTypeBuildCompleted = "build_completed"

// Build outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// BuildCompletedEvent is the payload published when a pipeline run ends.
type BuildCompletedEvent struct {
	EventType string `json:"event_type"` // always "build_completed"
	Version   string `json:"version"`
	RunID     string `json:"run_id"`
	Mode      string `json:"mode"`
	Outcome   string `json:"outcome"`
	// FailedStep names the critical step that aborted the run, if any.
	FailedStep string `json:"failed_step,omitempty"`
	Timestamp  string `json:"timestamp"` // RFC 3339
	DurationMs int64  `json:"duration_ms"`
	Steps      int    `json:"steps"`
	// StepsFailed counts failed steps, critical or not.
	StepsFailed     int      `json:"steps_failed"`
	AssetsProcessed int64    `json:"assets_processed"`
	TotalGzip       int64    `json:"total_gzip"`
	Regressions     []string `json:"regressions,omitempty"`
}

// Adapter publishes build completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *BuildCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
