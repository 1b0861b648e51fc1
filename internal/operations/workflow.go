package operations

import (
	"context"
	"log/slog"
	"time"

	"bybithist/internal/driver"
	"bybithist/internal/history"
)

// Workflow drives one chunk through the UI step sequence. It holds no
// session of its own: the orchestrator lends it the shared driver for
// exactly one Run call.
type Workflow struct {
	watcher *Watcher
	retry   RetryConfig
	logger  *slog.Logger
}

// NewWorkflow creates a workflow around the completion watcher and retry
// policy shared by all chunks of a run.
func NewWorkflow(watcher *Watcher, retry RetryConfig, logger *slog.Logger) *Workflow {
	if retry.MaxAttempts < 1 {
		retry = NewRetryConfig()
	}
	return &Workflow{watcher: watcher, retry: retry, logger: logger}
}

// transition is one state entry: the state reached on success and the single
// driver action whose success reaches it.
type transition struct {
	state State
	act   func(context.Context) error
}

// Run executes the chunk state machine:
//
//	Idle → MarketSelected → DatasetSelected → SymbolSelected → RangeSet
//	     → ExportTriggered → AwaitingFile → Resolved
//
// Each state entry performs one driver action, retried in place with backoff
// on transient failures. A download-wait timeout re-enters at the export
// trigger; the watcher tolerates the duplicate export this can cause by
// accepting the newest matching file. Fatal session failures abort the chunk
// immediately.
func (w *Workflow) Run(ctx context.Context, drv driver.Driver, req history.Request, chunk history.Chunk) ChunkOutcome {
	out := ChunkOutcome{Chunk: chunk, Attempts: 1, Status: ChunkFailed}
	log := w.logger.With(
		slog.String("request", req.String()),
		slog.Int("chunk", chunk.Index),
		slog.String("range", chunk.Range()))

	setup := []transition{
		{StateMarketSelected, func(ctx context.Context) error { return drv.SelectMarket(ctx, req.Market) }},
		{StateDatasetSelected, func(ctx context.Context) error { return drv.SelectDataset(ctx, req.Dataset) }},
		{StateSymbolSelected, func(ctx context.Context) error { return drv.SelectSymbol(ctx, req.Symbol) }},
		{StateRangeSet, func(ctx context.Context) error { return drv.SetDateRange(ctx, chunk.Start, chunk.End) }},
	}
	for _, tr := range setup {
		if err := w.perform(ctx, log, tr, &out.Attempts); err != nil {
			out.Err = err
			return out
		}
	}

	trigger := transition{StateExportTriggered, func(ctx context.Context) error { return drv.TriggerExport(ctx) }}
	glob := history.StagingGlob(req)

	// Staging must hold nothing matching this request before the export
	// fires: a leftover from an earlier chunk is stable and would resolve
	// as this chunk's download.
	if n := w.watcher.Sweep(glob); n > 0 {
		log.Warn("swept stale staged files",
			slog.String("glob", glob),
			slog.Int("removed", n))
	}
	triggeredAt := time.Now()

	// Export and wait form a cycle of their own: a wait that times out
	// re-triggers the export rather than re-walking the whole page.
	for cycle := 1; ; cycle++ {
		if err := w.perform(ctx, log, trigger, &out.Attempts); err != nil {
			out.Err = err
			return out
		}

		log.Info("awaiting download", slog.String("glob", glob))
		path, err := w.watcher.Await(ctx, glob, triggeredAt)
		if err == nil {
			out.Status = ChunkCompleted
			out.ResolvedPath = path
			log.Info("chunk resolved",
				slog.String("path", path),
				slog.Int("attempts", out.Attempts))
			return out
		}

		out.Attempts++
		if ctx.Err() != nil {
			out.Err = NewCancellationError(StateAwaitingFile, ctx.Err())
			return out
		}
		if !IsRetryable(err) || cycle >= w.retry.MaxAttempts {
			out.Err = err
			return out
		}
		delay := w.retry.Delay(cycle)
		log.Warn("download wait timed out, re-triggering export",
			slog.Int("cycle", cycle),
			slog.Duration("backoff", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			out.Err = NewCancellationError(StateAwaitingFile, ctx.Err())
			return out
		}
	}
}

// perform enters one state: it runs the state's action, retrying transient
// failures up to the attempt budget with exponential backoff. Fatal session
// failures and cancellation return immediately.
func (w *Workflow) perform(ctx context.Context, log *slog.Logger, tr transition, attempts *int) error {
	var lastErr error
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		err := tr.act(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return NewCancellationError(tr.state, ctx.Err())
		}
		*attempts++
		lastErr = err

		if driver.IsFatal(err) {
			log.Error("fatal session failure",
				slog.String("state", string(tr.state)),
				slog.String("error", err.Error()))
			return NewFatalSessionError(tr.state, err)
		}
		if attempt == w.retry.MaxAttempts {
			break
		}
		delay := w.retry.Delay(attempt)
		log.Warn("transient failure, retrying action",
			slog.String("state", string(tr.state)),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", w.retry.MaxAttempts),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return NewCancellationError(tr.state, ctx.Err())
		}
	}
	return NewTransientError(tr.state, lastErr)
}
