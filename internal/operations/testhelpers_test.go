package operations_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bybithist/internal/driver"
	"bybithist/internal/history"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDriver scripts per-action failures and records every call so tests can
// assert on the exact UI traffic a scenario produces.
type fakeDriver struct {
	mu       sync.Mutex
	opens    int
	closes   int
	calls    []string
	failures map[string][]error

	// onTrigger runs on each TriggerExport call, typically to drop a file
	// into the staging directory the watcher polls.
	onTrigger func(call int)
	triggers  int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{failures: make(map[string][]error)}
}

// failNext queues errs to be returned by the named action, one per call,
// before it starts succeeding.
func (d *fakeDriver) failNext(action string, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[action] = append(d.failures[action], errs...)
}

func (d *fakeDriver) step(ctx context.Context, action string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, action)
	if queue := d.failures[action]; len(queue) > 0 {
		err := queue[0]
		d.failures[action] = queue[1:]
		return err
	}
	return nil
}

func (d *fakeDriver) callCount(action string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == action {
			n++
		}
	}
	return n
}

func (d *fakeDriver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDriver) SelectMarket(ctx context.Context, market history.Market) error {
	return d.step(ctx, "select_market")
}

func (d *fakeDriver) SelectDataset(ctx context.Context, dataset history.Dataset) error {
	return d.step(ctx, "select_dataset")
}

func (d *fakeDriver) SelectSymbol(ctx context.Context, symbol string) error {
	return d.step(ctx, "select_symbol")
}

func (d *fakeDriver) SetDateRange(ctx context.Context, start, end time.Time) error {
	return d.step(ctx, "set_date_range")
}

func (d *fakeDriver) TriggerExport(ctx context.Context) error {
	err := d.step(ctx, "trigger_export")
	d.mu.Lock()
	d.triggers++
	n := d.triggers
	fn := d.onTrigger
	d.mu.Unlock()
	if err == nil && fn != nil {
		fn(n)
	}
	return err
}

func (d *fakeDriver) ListSymbols(ctx context.Context, market history.Market) ([]string, error) {
	if err := d.step(ctx, "list_symbols"); err != nil {
		return nil, err
	}
	return []string{"BTCUSDT", "ETHUSDT"}, nil
}

var _ driver.Driver = (*fakeDriver)(nil)

// fakeArchive is an in-memory Archive implementation keyed by chunk index.
type fakeArchive struct {
	mu       sync.Mutex
	existing map[int]string
	commits  []int
	failWith error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{existing: make(map[int]string)}
}

func (a *fakeArchive) Lookup(req history.Request, chunk history.Chunk) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path, ok := a.existing[chunk.Index]
	return path, ok
}

func (a *fakeArchive) Commit(ctx context.Context, req history.Request, chunk history.Chunk, stagedPath string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return "", a.failWith
	}
	// Mimic the real archiver's move out of staging.
	os.Remove(stagedPath)
	target := fmt.Sprintf("/archive/%s/chunk-%d.csv", req.Dataset, chunk.Index)
	a.existing[chunk.Index] = target
	a.commits = append(a.commits, chunk.Index)
	return target, nil
}

func testRequest() history.Request {
	return history.Request{
		Market:    history.MarketSpot,
		Dataset:   history.DatasetTrades,
		Symbol:    "BTCUSDT",
		Start:     mustDate("2026-01-01"),
		End:       mustDate("2026-01-12"),
		ChunkDays: 5,
	}
}

func mustDate(s string) time.Time {
	t, err := time.Parse(history.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// stageFile writes a stable download into the staging directory.
func stageFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("stage file: %v", err)
	}
	return path
}
