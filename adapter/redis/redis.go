// Package redis announces build_completed events on a Redis pub/sub
// channel. Optionally the latest event per build mode is also kept under a
// key, so a dashboard that was not subscribed can read the last outcome.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/kiln/adapter"
)

const (
	DefaultChannel = "kiln:build_completed"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
)

var baseBackoff = 500 * time.Millisecond

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL     string
	Channel string
	// LatestKey, when set, stores each event at "<LatestKey>:<mode>".
	LatestKey string
	// LatestTTL expires the stored event; zero keeps it.
	LatestTTL time.Duration
	// Timeout bounds each attempt.
	Timeout time.Duration
	Retries int
}

// Adapter publishes events with PUBLISH and, optionally, SET.
type Adapter struct {
	config Config
	client *goredis.Client
}

var _ adapter.Adapter = (*Adapter)(nil)

// New validates cfg and creates the client without dialing.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// LatestKeyFor returns the key the latest event of mode is stored at.
func (a *Adapter) LatestKeyFor(mode string) string {
	return a.config.LatestKey + ":" + mode
}

// Publish announces the event. With LatestKey set, the SET and the PUBLISH
// run in one MULTI/EXEC so readers never see a stored event that was not
// announced.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BuildCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	err = adapter.Retry(ctx, a.config.Retries, baseBackoff, func(ctx context.Context, _ int) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		if a.config.LatestKey == "" {
			return a.client.Publish(ctx, a.config.Channel, body).Err()
		}
		_, err := a.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, a.LatestKeyFor(event.Mode), body, a.config.LatestTTL)
			p.Publish(ctx, a.config.Channel, body)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}
