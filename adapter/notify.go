package adapter

import (
	"context"
	"fmt"
)

// Notify selects which build_completed events reach the downstream system.
type Notify string

const (
	// NotifyAlways publishes every run.
	NotifyAlways Notify = "always"
	// NotifyFailure publishes failed runs only.
	NotifyFailure Notify = "failure"
	// NotifyChange publishes failed runs and runs with a performance
	// regression.
	NotifyChange Notify = "change"
)

// ParseNotify parses a notify policy; empty means NotifyAlways.
func ParseNotify(s string) (Notify, error) {
	switch n := Notify(s); n {
	case "":
		return NotifyAlways, nil
	case NotifyAlways, NotifyFailure, NotifyChange:
		return n, nil
	default:
		return "", fmt.Errorf("notify must be always, failure or change, got %q", s)
	}
}

// Wants reports whether the policy publishes e.
func (n Notify) Wants(e *BuildCompletedEvent) bool {
	switch n {
	case NotifyFailure:
		return e.Outcome == OutcomeFailed
	case NotifyChange:
		return e.Outcome == OutcomeFailed || len(e.Regressions) > 0
	default:
		return true
	}
}

type filtered struct {
	Adapter
	notify Notify
}

// Filter wraps a so that only events the policy wants are published.
// Dropped events are not an error.
func Filter(a Adapter, n Notify) Adapter {
	if n == "" || n == NotifyAlways {
		return a
	}
	return &filtered{Adapter: a, notify: n}
}

func (f *filtered) Publish(ctx context.Context, e *BuildCompletedEvent) error {
	if !f.notify.Wants(e) {
		return nil
	}
	return f.Adapter.Publish(ctx, e)
}
