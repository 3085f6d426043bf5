// Package history keeps an append-only archive of performance snapshots in
// a Lode dataset on the local filesystem or S3.
//
// The snapshot file remains the baseline for regression checks; the
// archive only adds a queryable record of every persisted run.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/pithecene-io/kiln/metrics"
	"github.com/pithecene-io/kiln/perf"
	"github.com/pithecene-io/kiln/types"
)

// RecordKindSnapshot tags archived snapshot records.
const RecordKindSnapshot = "snapshot"

// ErrNoHistory is returned when the archive holds no snapshots.
var ErrNoHistory = errors.New("no archived snapshots")

// appendAttempts bounds Append on transient storage failures.
const appendAttempts = 3

// appendBackoff is the delay before the first append retry; it doubles.
var appendBackoff = 250 * time.Millisecond

// Storage backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Config selects the dataset and its backend.
type Config struct {
	Dataset string
	// Backend is "fs" or "s3".
	Backend string
	// Path is the root directory (fs) or "bucket/prefix" (s3).
	Path string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint for S3-compatible providers.
	Endpoint string
	// S3PathStyle forces path-style addressing.
	S3PathStyle bool
}

// Archive is a Lode-backed snapshot log.
type Archive struct {
	ds        lode.Dataset
	dataset   string
	collector *metrics.Collector
}

var _ perf.Archive = (*Archive)(nil)

// Open creates an Archive on the configured backend.
// S3 uses the AWS SDK default credential chain.
func Open(ctx context.Context, cfg Config, collector *metrics.Collector) (*Archive, error) {
	var factory lode.StoreFactory
	switch cfg.Backend {
	case "", BackendFS:
		factory = lode.NewFSFactory(cfg.Path)
	case BackendS3:
		f, err := s3Factory(ctx, cfg)
		if err != nil {
			return nil, storageErr(OpOpen, cfg.Dataset, "", err)
		}
		factory = f
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
	return NewWithFactory(cfg.Dataset, factory, collector)
}

// NewWithFactory creates an Archive on a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewWithFactory(dataset string, factory lode.StoreFactory, collector *metrics.Collector) (*Archive, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("day", "run_id"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, storageErr(OpOpen, dataset, "", err)
	}
	return &Archive{ds: ds, dataset: dataset, collector: collector}, nil
}

func s3Factory(ctx context.Context, cfg Config) (lode.StoreFactory, error) {
	bucket, prefix, _ := strings.Cut(cfg.Path, "/")
	if bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.S3PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: bucket, Prefix: prefix})
	}, nil
}

// Append writes snap as one record partitioned by day and run. Transient
// storage failures are retried with backoff; other failures return at once.
func (a *Archive) Append(ctx context.Context, snap *types.MetricsSnapshot) error {
	record, err := toRecord(snap)
	if err != nil {
		a.collector.RecordHistoryWrite(false)
		return err
	}

	for attempt := range appendAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				a.collector.RecordHistoryWrite(false)
				return storageErr(OpAppend, a.dataset, snap.RunID, ctx.Err())
			case <-time.After(appendBackoff << uint(attempt-1)):
			}
		}
		_, werr := a.ds.Write(ctx, []any{record}, lode.Metadata{})
		err = storageErr(OpAppend, a.dataset, snap.RunID, werr)
		if err == nil || !IsTransient(err) {
			break
		}
	}

	a.collector.RecordHistoryWrite(err == nil)
	return err
}

// List returns every archived snapshot, oldest first. A record that does
// not decode, or that a newer kiln wrote, fails the listing with ErrCorrupt
// or ErrNewerFormat.
func (a *Archive) List(ctx context.Context) ([]*types.MetricsSnapshot, error) {
	snapshots, err := a.ds.Snapshots(ctx)
	if err != nil {
		return nil, storageErr(OpList, a.dataset, "", err)
	}

	var out []*types.MetricsSnapshot
	for _, s := range snapshots {
		items, err := a.ds.Read(ctx, s.ID)
		if err != nil {
			return nil, storageErr(OpList, a.dataset, string(s.ID), err)
		}
		for _, item := range items {
			snap, ok, err := fromRecord(item)
			if err != nil {
				var se *StorageError
				if errors.As(err, &se) {
					se.Dataset = a.dataset
				}
				return nil, err
			}
			if ok {
				out = append(out, snap)
			}
		}
	}
	return out, nil
}

// Latest returns the most recently archived snapshot, or ErrNoHistory.
func (a *Archive) Latest(ctx context.Context) (*types.MetricsSnapshot, error) {
	all, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoHistory
	}
	return all[len(all)-1], nil
}

func toRecord(snap *types.MetricsSnapshot) (map[string]any, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	runID := snap.RunID
	if runID == "" {
		runID = "unknown"
	}
	return map[string]any{
		"record_kind": RecordKindSnapshot,
		"day":         snap.Timestamp.UTC().Format("2006-01-02"),
		"run_id":      runID,
		"snapshot":    body,
	}, nil
}

func fromRecord(item any) (*types.MetricsSnapshot, bool, error) {
	record, ok := item.(map[string]any)
	if !ok || record["record_kind"] != RecordKindSnapshot {
		return nil, false, nil
	}
	run, _ := record["run_id"].(string)
	corrupt := func(err error) error {
		return &StorageError{Kind: ErrCorrupt, Op: OpDecode, Run: run, Err: err}
	}

	data, err := json.Marshal(record["snapshot"])
	if err != nil {
		return nil, false, corrupt(err)
	}
	var snap types.MetricsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, corrupt(err)
	}
	if snap.FormatVersion > types.SnapshotFormatVersion {
		return nil, false, &StorageError{
			Kind: ErrNewerFormat,
			Op:   OpDecode,
			Run:  run,
			Err:  fmt.Errorf("format %d, this kiln reads up to %d", snap.FormatVersion, types.SnapshotFormatVersion),
		}
	}
	return &snap, true, nil
}
