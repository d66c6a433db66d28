// Package state persists per-item processing progress between runs.
//
// The store is a single JSON document mapping catalog item ids to their last
// known status, metadata fingerprint, timestamps, and failure count. It is
// loaded once per run, updated in memory as items are processed, and written
// back with an atomic temp-file rename after every transition so an
// interrupted run never loses or corrupts completed work.
//
// A missing file is an empty store. A file that cannot be parsed is fatal:
// discarding it would silently redo or hide prior work.
package state
