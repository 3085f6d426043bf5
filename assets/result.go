package assets

import (
	"errors"

	"github.com/pithecene-io/kiln/types"
)

// ErrNoAssetsProcessed is returned by Result.Err when assets were found but
// none produced output.
var ErrNoAssetsProcessed = errors.New("no assets processed")

// AssetResult is the outcome of one asset.
type AssetResult struct {
	Asset    types.Asset               `json:"asset"`
	Outcome  types.AssetOutcome        `json:"outcome"`
	Variants []types.ResponsiveVariant `json:"variants,omitempty"`
	// Errors lists per-format or per-variant failures. An asset with at
	// least one written variant is still processed.
	Errors []string `json:"errors,omitempty"`
	// OutBytes is the size a client fetches at native width: the smallest
	// full-size variant.
	OutBytes int64 `json:"out_bytes"`
}

// Result aggregates one optimizer run.
type Result struct {
	Scope     Scope `json:"scope"`
	Found     int   `json:"found"`
	Processed int   `json:"processed"`
	Skipped   int   `json:"skipped"`
	Errored   int   `json:"errored"`
	BytesIn   int64 `json:"bytes_in"`
	BytesOut  int64 `json:"bytes_out"`
	// Batches holds the size of each batch in execution order.
	Batches []int         `json:"batches"`
	Assets  []AssetResult `json:"assets"`
}

// BytesSaved returns BytesIn - BytesOut over processed assets.
func (r *Result) BytesSaved() int64 {
	return r.BytesIn - r.BytesOut
}

// Err returns ErrNoAssetsProcessed when assets were expected but none were
// processed. Whether that is fatal is the caller's decision.
func (r *Result) Err() error {
	if r.Found > 0 && r.Processed == 0 {
		return ErrNoAssetsProcessed
	}
	return nil
}

// Manifest builds the manifest from processed assets in scan order.
// Only variants whose files were written are present on results.
func (r *Result) Manifest() *types.AssetManifest {
	m := types.NewAssetManifest()
	for _, ar := range r.Assets {
		if ar.Outcome != types.OutcomeProcessed {
			continue
		}
		for _, v := range ar.Variants {
			m.AddVariant(v)
		}
		if p := preferredPath(ar); p != "" {
			m.Files[ar.Asset.Original] = p
		}
	}
	return m
}

// preferredPath picks the full-size variant in the source format, falling
// back to the first full-size variant produced.
func preferredPath(ar AssetResult) string {
	fallback := ""
	for _, v := range ar.Variants {
		if !v.FullSize {
			continue
		}
		if v.Format == ar.Asset.Format {
			return v.Path
		}
		if fallback == "" {
			fallback = v.Path
		}
	}
	return fallback
}

func (r *Result) add(ar AssetResult) {
	r.Assets = append(r.Assets, ar)
	switch ar.Outcome {
	case types.OutcomeProcessed:
		r.Processed++
		r.BytesIn += ar.Asset.Size
		r.BytesOut += ar.OutBytes
	case types.OutcomeSkippedTooLarge:
		r.Skipped++
	default:
		r.Errored++
	}
}

// Merge combines results of concurrently run scopes into one, preserving
// argument order. Used to regenerate a single manifest after sub-steps.
func Merge(results ...*Result) *Result {
	out := &Result{Scope: ScopeAll}
	for _, r := range results {
		if r == nil {
			continue
		}
		out.Found += r.Found
		out.Batches = append(out.Batches, r.Batches...)
		for _, ar := range r.Assets {
			out.add(ar)
		}
	}
	return out
}
