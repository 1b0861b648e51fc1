package operations

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Watcher detects completion of asynchronous exports: the platform drops a
// file into the staging directory at its own pace, and the only reliable
// completion signal is the file's size holding still between polls.
type Watcher struct {
	dir      string
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher over the staging directory. interval is the
// poll cadence, timeout the per-chunk wait budget.
func NewWatcher(dir string, interval, timeout time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Watcher{dir: dir, interval: interval, timeout: timeout, logger: logger}
}

// Await blocks until a file matching glob exists in the staging directory
// with a size that is stable across two consecutive polls, and returns its
// path. Files modified before since are ignored: a leftover from an earlier
// chunk (a download that landed after its wait budget expired, or an extra
// per-day file of a multi-file export) is stable by definition and would
// otherwise resolve the wrong chunk. When several files match (a retried
// trigger can produce duplicate exports) the most recently modified one wins.
// Times out with a retryable download-timeout error.
func (w *Watcher) Await(ctx context.Context, glob string, since time.Time) (string, error) {
	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	var lastPath string
	var lastSize int64 = -1

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			w.logger.Warn("download wait budget exhausted",
				slog.String("glob", glob),
				slog.Duration("timeout", w.timeout))
			return "", NewDownloadTimeoutError(w.timeout)
		case <-tick.C:
			path, size, ok := w.latestMatch(glob, since)
			if !ok {
				lastPath, lastSize = "", -1
				continue
			}
			if path == lastPath && size == lastSize && size > 0 {
				w.logger.Info("download resolved",
					slog.String("path", path),
					slog.Int64("size_bytes", size))
				return path, nil
			}
			lastPath, lastSize = path, size
		}
	}
}

// latestMatch returns the newest non-partial file matching glob that was
// modified at or after since.
func (w *Watcher) latestMatch(glob string, since time.Time) (string, int64, bool) {
	matches, err := filepath.Glob(filepath.Join(w.dir, glob))
	if err != nil {
		w.logger.Warn("staging glob failed",
			slog.String("glob", glob),
			slog.String("error", err.Error()))
		return "", 0, false
	}

	var best string
	var bestSize int64
	var bestMod time.Time
	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() || info.ModTime().Before(since) {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = m
			bestSize = info.Size()
			bestMod = info.ModTime()
		}
	}
	return best, bestSize, best != ""
}

// Sweep removes leftover staged files matching glob and reports how many it
// removed. In-flight partial downloads are left alone. Called before a chunk
// triggers its export so nothing a previous chunk left behind can ever be
// mistaken for the new one.
func (w *Watcher) Sweep(glob string) int {
	matches, err := filepath.Glob(filepath.Join(w.dir, glob))
	if err != nil {
		return 0
	}
	removed := 0
	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed
}

// isPartial filters the browser's in-flight download markers.
func isPartial(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".crdownload", ".part", ".tmp":
		return true
	}
	return false
}
