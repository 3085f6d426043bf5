// Package webhook delivers build_completed events to an HTTP endpoint such
// as a deploy hook or a chat relay.
//
// Each delivery is a JSON POST. The run ID doubles as the delivery ID so a
// receiver can drop retried duplicates, and with a secret configured the
// body is signed with HMAC-SHA256 in X-Kiln-Signature.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pithecene-io/kiln/adapter"
	"github.com/pithecene-io/kiln/iox"
)

// Request headers set on every delivery.
const (
	HeaderEvent     = "X-Kiln-Event"
	HeaderDelivery  = "X-Kiln-Delivery"
	HeaderAttempt   = "X-Kiln-Attempt"
	HeaderSignature = "X-Kiln-Signature"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

var baseBackoff = 500 * time.Millisecond

// Config configures webhook delivery.
type Config struct {
	// URL receives the POST (required).
	URL string
	// Headers are added to each request, e.g. an Authorization token.
	Headers map[string]string
	// Secret signs the body when set.
	Secret  string
	Timeout time.Duration
	Retries int
}

// Adapter delivers events over HTTP.
type Adapter struct {
	config Config
	client *http.Client
}

var _ adapter.Adapter = (*Adapter)(nil)

// New validates cfg and applies defaults.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// retriable reports whether a response status may succeed on redelivery:
// server errors, request timeouts and rate limiting.
func retriable(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// Sign returns the X-Kiln-Signature value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Publish delivers the event, redelivering on network errors and
// retriable statuses.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BuildCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	err = adapter.Retry(ctx, a.config.Retries, baseBackoff, func(ctx context.Context, attempt int) error {
		return a.deliver(ctx, event.RunID, attempt+1, body)
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (a *Adapter) deliver(ctx context.Context, delivery string, attempt int, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return adapter.Permanent(fmt.Errorf("create request: %w", err))
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, adapter.EventTypeBuildCompleted)
	req.Header.Set(HeaderDelivery, delivery)
	req.Header.Set(HeaderAttempt, strconv.Itoa(attempt))
	if a.config.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(a.config.Secret, body))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := &StatusError{Code: resp.StatusCode}
	if !retriable(resp.StatusCode) {
		return adapter.Permanent(statusErr)
	}
	return statusErr
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
