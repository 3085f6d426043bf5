package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/kiln/adapter"
	"github.com/pithecene-io/kiln/iox"
)

func init() {
	baseBackoff = time.Millisecond
}

func testEvent() *adapter.BuildCompletedEvent {
	return &adapter.BuildCompletedEvent{
		EventType:       adapter.EventTypeBuildCompleted,
		Version:         "0.3.0",
		RunID:           "run-001",
		Mode:            "prod",
		Outcome:         adapter.OutcomeSuccess,
		Timestamp:       "2026-02-07T12:00:00Z",
		DurationMs:      1500,
		Steps:           7,
		AssetsProcessed: 42,
		TotalGzip:       120 << 10,
	}
}

func TestPublish_Success(t *testing.T) {
	var received adapter.BuildCompletedEvent
	var eventHeader string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		eventHeader = r.Header.Get(HeaderEvent)
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a, err := New(Config{URL: ts.URL, Headers: map[string]string{"Authorization": "Bearer t"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer iox.DiscardClose(a)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if received.RunID != "run-001" {
		t.Errorf("RunID = %q, want run-001", received.RunID)
	}
	if received.EventType != adapter.EventTypeBuildCompleted {
		t.Errorf("EventType = %q, want build_completed", received.EventType)
	}
	if eventHeader != adapter.EventTypeBuildCompleted {
		t.Errorf("X-Kiln-Event = %q", eventHeader)
	}
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a, err := New(Config{URL: ts.URL, Retries: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestPublish_SignedDelivery(t *testing.T) {
	type delivery struct {
		id, attempt, signature string
		body                   []byte
	}
	var (
		calls atomic.Int32
		mu    sync.Mutex
		got   []delivery
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		got = append(got, delivery{
			id:        r.Header.Get(HeaderDelivery),
			attempt:   r.Header.Get(HeaderAttempt),
			signature: r.Header.Get(HeaderSignature),
			body:      body,
		})
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	a, err := New(Config{URL: ts.URL, Secret: "s3cret", Retries: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2 (429 is retried)", len(got))
	}
	for i, d := range got {
		if d.id != "run-001" {
			t.Errorf("delivery %d id = %q, want run-001", i, d.id)
		}
		if want := fmt.Sprint(i + 1); d.attempt != want {
			t.Errorf("delivery %d attempt = %q, want %q", i, d.attempt, want)
		}
		if want := Sign("s3cret", d.body); d.signature != want {
			t.Errorf("delivery %d signature = %q, want %q", i, d.signature, want)
		}
	}
}

func TestSign(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	want := "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}

func TestPublish_UnsignedWithoutSecret(t *testing.T) {
	var signature string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(HeaderSignature)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a, _ := New(Config{URL: ts.URL})
	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if signature != "" {
		t.Errorf("%s = %q, want unset", HeaderSignature, signature)
	}
}

func TestPublish_4xxFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	a, _ := New(Config{URL: ts.URL, Retries: 3})
	err := a.Publish(t.Context(), testEvent())

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("Publish() error = %v, want StatusError 401", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a, _ := New(Config{URL: ts.URL, Retries: 2})
	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("Publish() expected error")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	a, _ := New(Config{URL: ts.URL})
	if err := a.Publish(ctx, testEvent()); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() expected error without URL")
	}
	if _, err := New(Config{URL: "http://x", Retries: -1}); err == nil {
		t.Error("New() expected error for negative retries")
	}
	a, err := New(Config{URL: "http://x"})
	if err != nil {
		t.Fatal(err)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", a.config.Timeout, DefaultTimeout)
	}
}
