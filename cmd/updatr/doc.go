// Package main hosts the updatr CLI.
//
// The Cobra command tree resolves configuration once per invocation, applies
// flag overrides, and hands the result to the internal packages: batchrun for
// a catalog pass, dups for the duplicate scanner, and the state and history
// stores for inspection. Output is a rounded table on a terminal and plain
// tab-separated text otherwise.
package main
