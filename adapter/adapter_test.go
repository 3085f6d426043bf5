package adapter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	transient := errors.New("unavailable")
	tests := []struct {
		name      string
		retries   int
		failures  int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{"first attempt", 3, 0, false, 1, false},
		{"succeeds on third", 3, 2, false, 3, false},
		{"exhausted", 2, 10, false, 3, true},
		{"no retries", 0, 1, false, 1, true},
		{"permanent stops", 3, 10, true, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(t.Context(), tt.retries, time.Millisecond, func(_ context.Context, attempt int) error {
				if attempt != calls {
					t.Errorf("attempt = %d, want %d", attempt, calls)
				}
				calls++
				if calls > tt.failures {
					return nil
				}
				if tt.permanent {
					return Permanent(transient)
				}
				return transient
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Retry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, transient) {
				t.Errorf("Retry() error = %v, want wrapped cause", err)
			}
		})
	}
}

func TestRetry_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := Retry(ctx, 3, time.Hour, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestParseNotify(t *testing.T) {
	for in, want := range map[string]Notify{"": NotifyAlways, "always": NotifyAlways, "failure": NotifyFailure, "change": NotifyChange} {
		if got, err := ParseNotify(in); err != nil || got != want {
			t.Errorf("ParseNotify(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseNotify("sometimes"); err == nil {
		t.Error("ParseNotify(sometimes) expected error")
	}
}

type recordingAdapter struct {
	published []string
}

func (r *recordingAdapter) Publish(_ context.Context, e *BuildCompletedEvent) error {
	r.published = append(r.published, e.RunID)
	return nil
}

func (r *recordingAdapter) Close() error { return nil }

func TestFilter(t *testing.T) {
	events := []*BuildCompletedEvent{
		{RunID: "ok", Outcome: OutcomeSuccess},
		{RunID: "failed", Outcome: OutcomeFailed, FailedStep: "js"},
		{RunID: "regressed", Outcome: OutcomeFailed, FailedStep: "perf", Regressions: []string{"bundle size regressed"}},
		{RunID: "baseline", Outcome: OutcomeSuccess, Regressions: []string{"build time regressed"}},
	}
	tests := []struct {
		notify Notify
		want   []string
	}{
		{NotifyAlways, []string{"ok", "failed", "regressed", "baseline"}},
		{NotifyFailure, []string{"failed", "regressed"}},
		{NotifyChange, []string{"failed", "regressed", "baseline"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.notify), func(t *testing.T) {
			rec := &recordingAdapter{}
			a := Filter(rec, tt.notify)
			for _, e := range events {
				if err := a.Publish(t.Context(), e); err != nil {
					t.Fatalf("Publish(%s) error = %v", e.RunID, err)
				}
			}
			if len(rec.published) != len(tt.want) {
				t.Fatalf("published = %v, want %v", rec.published, tt.want)
			}
			for i := range tt.want {
				if rec.published[i] != tt.want[i] {
					t.Errorf("published = %v, want %v", rec.published, tt.want)
					break
				}
			}
		})
	}
}
