package operations

import (
	"time"

	"bybithist/internal/history"
)

// State names the position of a chunk's workflow in its strict step order.
type State string

const (
	StateIdle            State = "idle"
	StateMarketSelected  State = "market_selected"
	StateDatasetSelected State = "dataset_selected"
	StateSymbolSelected  State = "symbol_selected"
	StateRangeSet        State = "range_set"
	StateExportTriggered State = "export_triggered"
	StateAwaitingFile    State = "awaiting_file"
	StateResolved        State = "resolved"
	StateFailed          State = "failed"
)

// ChunkStatus is the terminal status of one chunk.
type ChunkStatus string

const (
	ChunkCompleted ChunkStatus = "completed"
	ChunkSkipped   ChunkStatus = "skipped"
	ChunkFailed    ChunkStatus = "failed"
)

// ChunkOutcome is the terminal record for one chunk of a run.
type ChunkOutcome struct {
	Chunk history.Chunk `json:"chunk"`
	// Status is the terminal status; Skipped means the canonical archive
	// file already existed and no UI work was performed.
	Status ChunkStatus `json:"status"`
	// Attempts is how many tries the chunk took: 1 for a clean pass, plus
	// one for every failed action invocation along the way.
	Attempts int `json:"attempts"`
	// ResolvedPath is the committed archive path for completed chunks.
	ResolvedPath string `json:"resolved_path,omitempty"`
	Err          error  `json:"-"`
}

// RetryConfig defines per-action retry behavior with exponential backoff.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the backoff before the retry following the given attempt
// (attempt is 1-based).
func (c RetryConfig) Delay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Report aggregates every chunk outcome of one run.
type Report struct {
	RunID    string          `json:"run_id"`
	Request  history.Request `json:"request"`
	Outcomes []ChunkOutcome  `json:"outcomes"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
}

// Completed counts chunks that downloaded and committed.
func (r *Report) Completed() int { return r.count(ChunkCompleted) }

// Skipped counts chunks satisfied by the existing archive.
func (r *Report) Skipped() int { return r.count(ChunkSkipped) }

// Failed counts chunks that exhausted their retries.
func (r *Report) Failed() int { return r.count(ChunkFailed) }

// Ok reports whether every chunk ended Completed or Skipped. The process
// exit status is derived from this.
func (r *Report) Ok() bool { return r.Failed() == 0 }

func (r *Report) count(status ChunkStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
