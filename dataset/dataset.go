// Package dataset reads and writes the on-disk artifacts and provides the
// staleness-aware in-memory cache in front of them.
//
// Artifacts are CSV files written atomically: content goes to a temporary
// file in the target directory which is then renamed over the destination,
// so concurrent readers only ever observe a fully written version.
package dataset

import "errors"

var (
	// ErrSchema reports a structurally incompatible artifact: a missing or
	// unexpected column set. It is fatal to the current operation.
	ErrSchema = errors.New("dataset: schema mismatch")

	// ErrUnavailable reports a source file for an artifact that has never
	// been produced. Callers surface it instead of serving empty data.
	ErrUnavailable = errors.New("dataset: artifact unavailable")
)
