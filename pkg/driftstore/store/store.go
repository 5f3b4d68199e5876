// Package store provides atomic, crash-safe persistence for opaque
// documents keyed by name.
//
// Each key owns three on-disk slots: a primary (the authoritative copy), a
// single rolling backup (the previous fully-written copy), and transient
// temp files used as write targets. A save is only ever observed as the old
// value or the new value, never a partial write: the new bytes are written
// to a temp file and fsynced, the old primary is demoted to the backup slot,
// and only then is the temp file renamed into place.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// Source identifies which slot served a load.
type Source int

const (
	// SourcePrimary means the authoritative copy was read.
	SourcePrimary Source = iota

	// SourceBackup means the primary was missing or corrupt and the load
	// was served from the backup slot. The primary is left untouched;
	// repair is an explicit Save by the caller.
	SourceBackup
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourcePrimary:
		return "primary"
	case SourceBackup:
		return "backup"
	default:
		return "unknown"
	}
}

// DocumentStore persists opaque documents for crash recovery.
// Implementations must be safe for concurrent use.
type DocumentStore interface {
	// Save durably writes data under key. On return either the previous
	// value or the new value is fully on disk, never a mixture.
	Save(key string, data []byte) error

	// Load retrieves the document for key, falling back to the backup
	// slot when the primary is missing or corrupt.
	// Returns ErrNotFound if neither slot exists.
	Load(key string) ([]byte, error)

	// LoadFrom is Load plus the slot that served the read, so callers
	// can observe a backup recovery without the read mutating anything.
	LoadFrom(key string) ([]byte, Source, error)

	// Exists reports whether key has a primary or backup on disk.
	Exists(key string) bool

	// Close releases any resources. Operations after Close return
	// ErrStoreClosed.
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no slot exists for the key.
	ErrNotFound = errors.New("document not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("document store closed")

	// ErrInvalidKey indicates a key that cannot name a storage slot.
	ErrInvalidKey = errors.New("invalid document key")

	// ErrNonAtomicFilesystem indicates the data directory cannot provide
	// atomic same-directory renames. The store refuses to run rather
	// than degrade to a non-atomic copy.
	ErrNonAtomicFilesystem = errors.New("filesystem cannot guarantee atomic rename")
)

// IOError wraps a failed I/O step. The primary for the key is untouched.
type IOError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// UnrecoverableError indicates both the primary and the backup slot failed
// for a key. Fatal for that key only; other keys are unaffected.
type UnrecoverableError struct {
	Key string
}

// Error implements the error interface.
func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("document %q unrecoverable: primary and backup both failed", e.Key)
}

// ValidateKey rejects keys that would escape the data directory or collide
// with slot suffixes. Exported so callers that persist key names (such as
// the session manager's dirty set) can refuse them before they reach disk.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, ".") {
		return ErrInvalidKey
	}
	return nil
}
