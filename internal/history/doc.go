// Package history defines the domain model for the Bybit history-data
// downloader: markets, datasets, validated download requests, and the
// date-range chunker that splits a request into UI-legal sub-ranges.
//
// Everything in this package is pure. Chunking is deterministic so a resumed
// run recomputes the exact chunk sequence of the run it resumes, and the
// canonical filename derivation is what makes the archive idempotent.
package history
