// Package harvest implements the resumable extracted-text pipeline for one
// collection.
//
// # Run Directories
//
// Every invocation creates a fresh timestamped directory under the output
// directory, named run-<YYYYMMDDThhmmss>Z-<safe-pid>. The directory holds
// three artifacts: the combined text file, the listing ledger and the
// checkpoint. A resumed run byte-copies the newest unfinished run's listing
// and combined text into its own directory before touching the network, so
// prior directories are never mutated.
//
// # State Model
//
// The listing is the source of truth: an upsert-by-pid ledger of item
// outcomes whose summary is recomputed from the items and from stat of the
// combined file before every save. The checkpoint is a derived snapshot
// (counts, completion flag, timestamps) whose counters are always computed
// from the listing. Both files are written atomically via a temp file and
// rename, and both are persisted after every item, so an interrupt loses at
// most the item in flight.
//
// # Item Handling
//
// Items with their own extracted-text datastream are appended directly.
// Items without one fall back to their direct children, settling on the
// first child that yields text or is denied. HTTP 403 anywhere records a
// forbidden outcome rather than failing the run; other item-level failures
// record a placeholder entry and move on.
//
// # Entry Points
//
// NewRunManager / Harvester.Run: the full pipeline.
// ListRuns: enumerate run directories for inspection.
// SplitCombined: parse a combined file back into per-pid segments.
package harvest
