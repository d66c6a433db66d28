// Package runner executes the external tools updatr drives.
//
// A Runner owns child environment construction, the catalog tool's
// environment strategies (inherit with a clean-env retry, clean, and ordered
// locale overrides), line-buffered capture of stdout and stderr, timeouts
// that kill the whole process group, and heartbeat logging for long silent
// commands.
//
// Tool failures are reported through Result.ExitCode and Result.TimedOut.
// Returned errors are reserved for commands that could not be started at all
// and for context cancellation.
package runner
