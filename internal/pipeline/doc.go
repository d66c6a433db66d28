// Package pipeline decides and carries out the work for each catalog item.
//
// A Processor walks one item through its state machine: the resting
// short-circuit, completeness scoring, then either embedding the existing
// metadata or fetching, applying and embedding fresh metadata. Every
// transition is persisted before the next step runs, so an interrupted run
// resumes cleanly. Run drives a Processor over a candidate list strictly in
// order and folds each Outcome into a RunSummary.
package pipeline
