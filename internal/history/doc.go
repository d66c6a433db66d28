// Package history keeps an SQLite ledger of runs and per-item outcomes.
//
// The ledger is advisory: the JSON state file remains the source of truth
// for what a run skips. History answers "what happened last night" and feeds
// the history command. Write failures are logged and never fail an item.
package history
