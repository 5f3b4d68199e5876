// Package integrity provides the shallow structural gate applied to a
// document before it is trusted: the bytes must parse and present the
// expected top-level shape. It is a fast filter, not a schema validator;
// deep semantic validation belongs to the layer that owns the document.
package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"os"
)

// Verdict is the outcome of an integrity check.
type Verdict int

const (
	// OK indicates the bytes parse and have the expected top-level shape.
	OK Verdict = iota

	// Corrupt indicates bytes exist but fail to parse or fail the
	// structural predicate.
	Corrupt

	// Missing indicates the path does not exist.
	Missing
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case OK:
		return "ok"
	case Corrupt:
		return "corrupt"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Checker validates a document on disk or in memory.
// Implementations must be safe for concurrent use.
type Checker interface {
	// Check validates the file at path.
	// Returns Missing if the path does not exist.
	Check(path string) Verdict

	// CheckBytes validates raw document bytes.
	CheckBytes(data []byte) Verdict
}

// JSONChecker accepts documents whose top level is a JSON object or array.
// If the document carries a "version" field, it must be a positive integer;
// versioned envelopes with a mangled marker are treated as corrupt even when
// the JSON itself parses.
type JSONChecker struct{}

// Compile-time interface check.
var _ Checker = JSONChecker{}

// Check implements Checker.
func (c JSONChecker) Check(path string) Verdict {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Missing
		}
		return Corrupt
	}
	return c.CheckBytes(data)
}

// CheckBytes implements Checker.
func (c JSONChecker) CheckBytes(data []byte) Verdict {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Corrupt
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return Corrupt
	}

	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return Corrupt
	}

	if obj, ok := value.(map[string]any); ok {
		if raw, present := obj["version"]; present {
			num, ok := raw.(float64)
			if !ok || num < 1 || num != math.Trunc(num) {
				return Corrupt
			}
		}
	}
	return OK
}

// HashFile returns a short sha256 fingerprint of the file's contents.
// Returns an empty string and the underlying error if the file cannot
// be read.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}
