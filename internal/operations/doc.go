// Package operations contains the chunked download orchestration core.
//
// A download run is split into UI-legal date chunks; each chunk is driven
// through an explicit state machine (market, dataset, symbol, range, export,
// awaiting file, resolved) with per-action retry and exponential backoff.
// Transient UI failures retry the same action in place, fatal session
// failures abort the chunk and force the session manager to recreate the
// browser before the next chunk, and download-completion timeouts re-enter
// the machine at the export trigger.
//
// Core components:
//
// Workflow: the per-chunk state machine. It borrows the shared browser
// session for exactly one chunk and reports a ChunkOutcome.
//
// Watcher: resolves an asynchronous export to a concrete staged file by
// polling the staging directory until a matching file's size is stable
// across two consecutive polls.
//
// SessionManager: exclusive owner of the single browser session. Opens it
// lazily, recycles it after a fatal failure, and guarantees teardown exactly
// once at run end.
//
// Orchestrator: drives chunks strictly in range order, skips chunks whose
// canonical archive file already exists, commits completed downloads through
// the archive writer, and aggregates every outcome into the run Report.
package operations
