// Package progress tracks simulation runs and their step timelines.
//
// A run is created once through Save (no run id supplied) and updated by
// later Saves carrying the same id; only score and completion are mutable.
// RecordStep appends to the run's timeline: the server assigns the next
// per-run sequence number from the stored maximum and backfills the step
// duration from its own event log when the client omits it or reports an
// implausible value. A unique (run, sequence) constraint plus a bounded
// retry keeps sequences gap-free and duplicate-free under concurrent
// submissions for the same run.
package progress
