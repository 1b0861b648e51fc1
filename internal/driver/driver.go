package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bybithist/internal/history"
)

// Driver is the abstract UI capability the download workflow drives. Every
// action returns nil on success, a transient *ActionError when the same
// action can be retried in place, or a fatal *ActionError when the browser
// session is beyond saving and must be recreated.
//
// A Driver is not safe for concurrent use; the session manager guarantees a
// single workflow holds it at a time.
type Driver interface {
	// Open launches the browser session. The context bounds the whole
	// session lifetime: cancelling it tears the browser down.
	Open(ctx context.Context) error

	// Close shuts the session down. Safe to call more than once.
	Close() error

	SelectMarket(ctx context.Context, market history.Market) error
	SelectDataset(ctx context.Context, dataset history.Dataset) error
	SelectSymbol(ctx context.Context, symbol string) error
	SetDateRange(ctx context.Context, start, end time.Time) error

	// TriggerExport asks the platform to produce the export for the
	// currently selected market/dataset/symbol/range. The file lands
	// asynchronously in the staging directory; completion detection is the
	// watcher's job, not the driver's.
	TriggerExport(ctx context.Context) error

	// ListSymbols enumerates the symbols the platform offers for a market.
	ListSymbols(ctx context.Context, market history.Market) ([]string, error)
}

// ActionError wraps a failed UI action with its retry classification.
type ActionError struct {
	Action string
	Cause  error
	Fatal  bool
}

func (e *ActionError) Error() string {
	kind := "transient"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("%s failure in %s: %v", kind, e.Action, e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }

// Transient marks a failure as retryable in place: timeouts, elements not
// ready yet, a dropdown that has not rendered.
func Transient(action string, cause error) *ActionError {
	return &ActionError{Action: action, Cause: cause}
}

// Fatal marks a failure as session-ending: the browser crashed or the
// devtools connection is gone. The current chunk aborts and the session is
// recreated before the next one.
func Fatal(action string, cause error) *ActionError {
	return &ActionError{Action: action, Cause: cause, Fatal: true}
}

// IsFatal reports whether err carries a fatal session classification.
func IsFatal(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae) && ae.Fatal
}

// ErrNoData is reported by TriggerExport when the platform shows no export
// rows for the selected range. It is classified transient: the listing
// sometimes renders late, and a range that genuinely has no data simply
// exhausts its retries and marks the chunk failed.
var ErrNoData = errors.New("no data listed for the selected date range")
