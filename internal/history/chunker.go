package history

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfiguration is returned for requests that violate platform
// limits or basic range invariants. It always fires before any UI work.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Chunk is one UI-legal sub-range of a requested date span. Chunks are
// immutable once created; Index is the position in the split sequence and is
// stable across runs for identical inputs.
type Chunk struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the calendar span of the chunk, inclusive of both endpoints.
func (c Chunk) Days() int {
	return int(c.End.Sub(c.Start).Hours()/24) + 1
}

// Range renders the chunk bounds as "YYYY-MM-DD..YYYY-MM-DD".
func (c Chunk) Range() string {
	return c.Start.Format(DateLayout) + ".." + c.End.Format(DateLayout)
}

// Split divides the inclusive range [start, end] into an ordered, gap-free,
// non-overlapping sequence of chunks, each spanning at most chunkDays
// calendar days. The split is deterministic: identical inputs always produce
// the identical sequence, which is what lets a resumed run line up with the
// archive a previous run left behind.
//
// chunkDays must be between 1 and MaxChunkDays; the Bybit UI rejects longer
// ranges outright, so a larger value is an ErrInvalidConfiguration, not
// something to silently clamp.
func Split(start, end time.Time, chunkDays int) ([]Chunk, error) {
	if chunkDays < 1 || chunkDays > MaxChunkDays {
		return nil, fmt.Errorf("%w: chunk days must be between 1 and %d, got %d",
			ErrInvalidConfiguration, MaxChunkDays, chunkDays)
	}
	start = truncateToDay(start)
	end = truncateToDay(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start date %s is after end date %s",
			ErrInvalidConfiguration, start.Format(DateLayout), end.Format(DateLayout))
	}

	var chunks []Chunk
	for cur := start; !cur.After(end); {
		chunkEnd := cur.AddDate(0, 0, chunkDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: cur, End: chunkEnd})
		cur = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks, nil
}

// SplitRequest chunks a validated request.
func SplitRequest(req Request) ([]Chunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return Split(req.Start, req.End, req.ChunkDays)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
