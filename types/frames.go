package types

// Frame type discriminants emitted by the page inspector executor.
const (
	FrameTypeLog      = "log"
	FrameTypeCoverage = "coverage"
	FrameTypeFragment = "fragment"
	FrameTypeError    = "error"
)

// InspectorInput is the JSON document written to the executor's stdin.
type InspectorInput struct {
	URL      string   `json:"url"`
	Viewport Viewport `json:"viewport"`
	// Properties is the computed-style allow-list for the DOM snapshot.
	Properties []string `json:"properties"`
	// ReadySignal is a window property awaited after load; empty skips the wait.
	ReadySignal string `json:"ready_signal,omitempty"`
	TimeoutMs   int64  `json:"timeout_ms"`
	// BrowserWSEndpoint connects to a shared browser instead of launching one.
	BrowserWSEndpoint string `json:"browser_ws_endpoint,omitempty"`
}

// LogFrame forwards an executor log line.
type LogFrame struct {
	Type    string         `msgpack:"type"`
	Level   string         `msgpack:"level"`
	Message string         `msgpack:"message"`
	Fields  map[string]any `msgpack:"fields,omitempty"`
}

// CoverageRange is a half-open byte range [Start, End) of applied rules.
type CoverageRange struct {
	Start int `msgpack:"start"`
	End   int `msgpack:"end"`
}

// CoverageFrame carries one stylesheet's text and its applied ranges.
// URL is empty for inline <style> elements.
type CoverageFrame struct {
	Type   string          `msgpack:"type"`
	URL    string          `msgpack:"url"`
	Text   string          `msgpack:"text"`
	Ranges []CoverageRange `msgpack:"ranges"`
}

// FragmentFrame carries the DOM-derived rule text. It is the last frame of
// a successful capture.
type FragmentFrame struct {
	Type     string `msgpack:"type"`
	Viewport string `msgpack:"viewport"`
	DOMCSS   string `msgpack:"dom_css"`
	Elements int    `msgpack:"elements"`
}

// ErrorFrame reports a capture failure; the executor exits non-zero after it.
type ErrorFrame struct {
	Type    string `msgpack:"type"`
	Phase   string `msgpack:"phase"`
	Message string `msgpack:"message"`
}
