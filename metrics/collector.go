// Package metrics provides per-run pipeline counters.
//
// The Collector accumulates counters during a single pipeline run. It is a
// leaf package with no internal dependencies. Asset totals are absorbed from
// the optimizer result at step completion rather than recorded per asset.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Steps
	StepsStarted   int64
	StepsSucceeded int64
	StepsFailed    int64
	StepsSkipped   int64

	// Assets (absorbed from the optimizer result)
	AssetsFound     int64
	AssetsProcessed int64
	AssetsSkipped   int64
	AssetsErrored   int64
	AssetBytesIn    int64
	AssetBytesOut   int64
	AssetBatches    int64

	// Critical CSS
	ViewportsSucceeded int64
	ViewportsFailed    int64

	// Executor
	ExecutorLaunchSuccess int64
	ExecutorLaunchFailure int64
	IPCDecodeErrors       int64

	// History / adapter
	HistoryWriteSuccess int64
	HistoryWriteFailure int64
	PublishSuccess      int64
	PublishFailure      int64

	// Dimensions (informational, set at construction)
	Mode           string
	StorageBackend string
	RunID          string
}

// Collector accumulates counters during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	stepsStarted   int64
	stepsSucceeded int64
	stepsFailed    int64
	stepsSkipped   int64

	assetsFound     int64
	assetsProcessed int64
	assetsSkipped   int64
	assetsErrored   int64
	assetBytesIn    int64
	assetBytesOut   int64
	assetBatches    int64

	viewportsSucceeded int64
	viewportsFailed    int64

	executorLaunchSuccess int64
	executorLaunchFailure int64
	ipcDecodeErrors       int64

	historyWriteSuccess int64
	historyWriteFailure int64
	publishSuccess      int64
	publishFailure      int64

	mode           string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when the history archive is disabled.
func NewCollector(mode, storageBackend, runID string) *Collector {
	return &Collector{
		mode:           mode,
		storageBackend: storageBackend,
		runID:          runID,
	}
}

func (c *Collector) inc(field *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Steps ---

// IncStepStarted records a step start.
func (c *Collector) IncStepStarted() {
	if c == nil {
		return
	}
	c.inc(&c.stepsStarted)
}

// RecordStep records the final state of a step.
func (c *Collector) RecordStep(success, skipped bool) {
	if c == nil {
		return
	}
	switch {
	case skipped:
		c.inc(&c.stepsSkipped)
	case success:
		c.inc(&c.stepsSucceeded)
	default:
		c.inc(&c.stepsFailed)
	}
}

// --- Assets ---

// AbsorbAssetTotals adds optimizer totals into the collector.
// Called once per optimizer run; sub-steps each contribute their own totals.
func (c *Collector) AbsorbAssetTotals(found, processed, skipped, errored, bytesIn, bytesOut, batches int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.assetsFound += found
	c.assetsProcessed += processed
	c.assetsSkipped += skipped
	c.assetsErrored += errored
	c.assetBytesIn += bytesIn
	c.assetBytesOut += bytesOut
	c.assetBatches += batches
	c.mu.Unlock()
}

// --- Critical CSS ---

// RecordViewport records one viewport extraction outcome.
func (c *Collector) RecordViewport(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.inc(&c.viewportsSucceeded)
		return
	}
	c.inc(&c.viewportsFailed)
}

// --- Executor ---

// IncExecutorLaunchSuccess records a successful executor launch.
func (c *Collector) IncExecutorLaunchSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.executorLaunchSuccess)
}

// IncExecutorLaunchFailure records a failed executor launch.
func (c *Collector) IncExecutorLaunchFailure() {
	if c == nil {
		return
	}
	c.inc(&c.executorLaunchFailure)
}

// IncIPCDecodeErrors records an IPC frame decode error.
func (c *Collector) IncIPCDecodeErrors() {
	if c == nil {
		return
	}
	c.inc(&c.ipcDecodeErrors)
}

// --- History / adapter ---

// RecordHistoryWrite records one history archive append.
func (c *Collector) RecordHistoryWrite(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.inc(&c.historyWriteSuccess)
		return
	}
	c.inc(&c.historyWriteFailure)
}

// RecordPublish records one adapter publish attempt outcome (after retries).
func (c *Collector) RecordPublish(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.inc(&c.publishSuccess)
		return
	}
	c.inc(&c.publishFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		StepsStarted:   c.stepsStarted,
		StepsSucceeded: c.stepsSucceeded,
		StepsFailed:    c.stepsFailed,
		StepsSkipped:   c.stepsSkipped,

		AssetsFound:     c.assetsFound,
		AssetsProcessed: c.assetsProcessed,
		AssetsSkipped:   c.assetsSkipped,
		AssetsErrored:   c.assetsErrored,
		AssetBytesIn:    c.assetBytesIn,
		AssetBytesOut:   c.assetBytesOut,
		AssetBatches:    c.assetBatches,

		ViewportsSucceeded: c.viewportsSucceeded,
		ViewportsFailed:    c.viewportsFailed,

		ExecutorLaunchSuccess: c.executorLaunchSuccess,
		ExecutorLaunchFailure: c.executorLaunchFailure,
		IPCDecodeErrors:       c.ipcDecodeErrors,

		HistoryWriteSuccess: c.historyWriteSuccess,
		HistoryWriteFailure: c.historyWriteFailure,
		PublishSuccess:      c.publishSuccess,
		PublishFailure:      c.publishFailure,

		Mode:           c.mode,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
}
