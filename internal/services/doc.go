// Package services defines shared error markers and context helpers consumed
// by the catalog, fetch, and pipeline packages.
//
// Key responsibilities:
//   - Context helpers that stamp catalog item IDs, run IDs, and stage names
//     for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent item statuses (timeouts vs other tool failures) and separate
//     setup faults from per-item failures.
//
// Use these helpers when wiring new external tool calls so failure handling
// stays uniform across the run.
package services
