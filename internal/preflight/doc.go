// Package preflight checks that a run can start at all.
//
// The batch run calls Verify before listing the catalog: an unreachable
// library, an unwritable state directory, or a missing tool is a setup fault
// and aborts before any item is touched. The status command renders the same
// results as a table.
package preflight
