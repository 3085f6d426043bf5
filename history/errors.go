package history

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds of the snapshot archive. Match with errors.Is.
var (
	// ErrNotFound means the bucket, prefix or directory does not exist.
	ErrNotFound = errors.New("archive location not found")

	// ErrDenied means the credentials are valid but may not touch the
	// archive location, or the local directory is not writable.
	ErrDenied = errors.New("archive access denied")

	// ErrAuth means no usable credentials were found or they expired.
	ErrAuth = errors.New("no usable storage credentials")

	// ErrFull means the backend is out of space or over quota.
	ErrFull = errors.New("archive storage full")

	// ErrUnavailable covers timeouts, throttling and network failures.
	// It is the only transient kind; appends are retried on it.
	ErrUnavailable = errors.New("archive storage unavailable")

	// ErrCorrupt means an archived record could not be decoded.
	ErrCorrupt = errors.New("archived snapshot is unreadable")

	// ErrNewerFormat means an archived snapshot was written by a newer
	// kiln with a snapshot format this binary does not know.
	ErrNewerFormat = errors.New("archived snapshot format is newer than supported")

	// ErrUnclassified is the kind of any other failure.
	ErrUnclassified = errors.New("archive error")
)

// Op names the archive operation that failed.
type Op string

const (
	OpOpen   Op = "open"
	OpAppend Op = "append"
	OpList   Op = "list"
	OpDecode Op = "decode"
)

// StorageError is a classified archive failure.
type StorageError struct {
	Kind error
	Op   Op
	// Dataset is the archive dataset; Run is the snapshot run ID when the
	// failure concerns a single snapshot.
	Dataset string
	Run     string
	Err     error
}

func (e *StorageError) Error() string {
	where := e.Dataset
	if e.Run != "" {
		where += "/" + e.Run
	}
	return fmt.Sprintf("history %s %s: %v: %v", e.Op, where, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the failure kind; the cause is reached through Unwrap.
func (e *StorageError) Is(target error) bool { return e.Kind == target }

// Transient reports whether retrying the operation may succeed.
func (e *StorageError) Transient() bool { return e.Kind == ErrUnavailable }

// IsTransient reports whether err is a transient archive failure.
func IsTransient(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Transient()
}

// storageErr classifies a backend failure of op. Returns nil for nil.
func storageErr(op Op, dataset, run string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: classify(err), Op: op, Dataset: dataset, Run: run, Err: err}
}

// kindPatterns maps lower-cased backend messages to kinds, first match
// wins. Lode's fs store surfaces os errors; the S3 store surfaces AWS
// error codes and HTTP statuses.
var kindPatterns = []struct {
	kind     error
	patterns []string
}{
	{ErrDenied, []string{"accessdenied", "forbidden", "403", "permission denied", "eacces", "read-only file system"}},
	{ErrNotFound, []string{"no such file", "does not exist", "not found", "enoent", "404", "nosuchkey", "nosuchbucket"}},
	{ErrFull, []string{"no space left", "disk full", "enospc", "quota exceeded"}},
	{ErrUnavailable, []string{
		"timeout", "timed out", "deadline exceeded",
		"slowdown", "rate exceeded", "throttl", "429", "toomanyrequests", "503",
		"connection refused", "connection reset", "no route to host", "network unreachable", "dial tcp", "dns",
	}},
	{ErrAuth, []string{"nocredentialproviders", "credentials", "invalidaccesskeyid",
		"signaturedoesnotmatch", "expiredtoken", "401", "unauthorized"}},
}

func classify(err error) error {
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return ErrUnavailable
	}

	msg := strings.ToLower(err.Error())
	for _, kp := range kindPatterns {
		for _, p := range kp.patterns {
			if strings.Contains(msg, p) {
				return kp.kind
			}
		}
	}
	return ErrUnclassified
}
