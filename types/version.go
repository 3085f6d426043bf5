package types

// Version is the canonical project version.
// The CLI, the embedded inspector script and the snapshot/report formats
// share this version.
const Version = "0.3.0"

// SnapshotFormatVersion is written into every persisted metrics snapshot.
// Bump when a field is renamed or its unit changes.
const SnapshotFormatVersion = 1
