package operations

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"bybithist/internal/history"
)

// Archive is the durable side of a run: the canonical output tree keyed by
// market/dataset/symbol/chunk range. Lookup is the idempotence check, Commit
// the durable point of no return.
type Archive interface {
	// Lookup reports whether the chunk's canonical file already exists and
	// where.
	Lookup(req history.Request, chunk history.Chunk) (string, bool)

	// Commit moves a staged download into the canonical layout and returns
	// the final path. After Commit returns nil the chunk is permanently
	// done and will never be re-fetched on resume.
	Commit(ctx context.Context, req history.Request, chunk history.Chunk, stagedPath string) (string, error)
}

// Orchestrator composes the session manager, workflow and archive into a
// full run: one state-machine traversal per chunk, strictly in range order,
// never aborting the run for a failed chunk.
type Orchestrator struct {
	sessions *SessionManager
	workflow *Workflow
	archive  Archive
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewOrchestrator wires the run. limiter paces export requests against the
// platform; pass nil to run unthrottled.
func NewOrchestrator(sessions *SessionManager, workflow *Workflow, archive Archive, limiter *rate.Limiter, logger *slog.Logger) *Orchestrator {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Orchestrator{
		sessions: sessions,
		workflow: workflow,
		archive:  archive,
		limiter:  limiter,
		logger:   logger,
	}
}

// Run validates the request, chunks it, and drives every chunk to a terminal
// outcome. Archive commits happen in chunk order, so a partial run's archive
// is always a contiguous prefix of the requested range. The browser session
// is torn down before Run returns, on every path.
func (o *Orchestrator) Run(ctx context.Context, runID string, req history.Request) (*Report, error) {
	chunks, err := history.SplitRequest(req)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:    runID,
		Request:  req,
		Outcomes: make([]ChunkOutcome, 0, len(chunks)),
		Started:  time.Now(),
	}
	defer o.sessions.Close()

	log := o.logger.With(
		slog.String("run_id", runID),
		slog.String("request", req.String()))
	log.Info("run starting",
		slog.Int("chunks", len(chunks)),
		slog.String("from", req.Start.Format(history.DateLayout)),
		slog.String("to", req.End.Format(history.DateLayout)))

	for _, chunk := range chunks {
		outcome := o.runChunk(ctx, log, req, chunk)
		report.Outcomes = append(report.Outcomes, outcome)

		if ctx.Err() != nil {
			log.Warn("run cancelled", slog.Int("after_chunk", chunk.Index))
			break
		}
	}

	report.Finished = time.Now()
	log.Info("run finished",
		slog.Int("completed", report.Completed()),
		slog.Int("skipped", report.Skipped()),
		slog.Int("failed", report.Failed()),
		slog.Duration("duration", report.Finished.Sub(report.Started)))
	return report, nil
}

func (o *Orchestrator) runChunk(ctx context.Context, log *slog.Logger, req history.Request, chunk history.Chunk) ChunkOutcome {
	// Filesystem presence is the sole idempotence signal: no browser work
	// for chunks the archive already holds.
	if path, ok := o.archive.Lookup(req, chunk); ok {
		log.Info("chunk already archived, skipping",
			slog.Int("chunk", chunk.Index),
			slog.String("range", chunk.Range()),
			slog.String("path", path))
		return ChunkOutcome{Chunk: chunk, Status: ChunkSkipped, ResolvedPath: path}
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return ChunkOutcome{
			Chunk:  chunk,
			Status: ChunkFailed,
			Err:    NewCancellationError(StateIdle, err),
		}
	}

	drv, err := o.sessions.Ensure(ctx)
	if err != nil {
		log.Error("session open failed",
			slog.Int("chunk", chunk.Index),
			slog.String("error", err.Error()))
		o.sessions.MarkBroken()
		return ChunkOutcome{
			Chunk:    chunk,
			Status:   ChunkFailed,
			Attempts: 1,
			Err:      NewFatalSessionError(StateIdle, err),
		}
	}

	outcome := o.workflow.Run(ctx, drv, req, chunk)

	if IsFatalSession(outcome.Err) {
		// The next chunk gets a fresh browser.
		o.sessions.MarkBroken()
	}

	if outcome.Status == ChunkCompleted {
		path, err := o.archive.Commit(ctx, req, chunk, outcome.ResolvedPath)
		if err != nil {
			log.Error("archive commit failed",
				slog.Int("chunk", chunk.Index),
				slog.String("staged", outcome.ResolvedPath),
				slog.String("error", err.Error()))
			outcome.Status = ChunkFailed
			outcome.Err = err
			return outcome
		}
		outcome.ResolvedPath = path
	}

	if outcome.Status == ChunkFailed && outcome.Err != nil {
		log.Error("chunk failed",
			slog.Int("chunk", chunk.Index),
			slog.String("range", chunk.Range()),
			slog.Int("attempts", outcome.Attempts),
			slog.String("error", outcome.Err.Error()))
	}
	return outcome
}
