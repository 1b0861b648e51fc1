package files

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"bybithist/internal/history"
)

// Archiver writes completed downloads into the canonical archive tree:
//
//	<base>/<dataset>/<market>_<symbol>_<dataset>_<start>_<end>.<ext>
//
// Presence of the canonical file is the resume signal; the move into place
// is the durable commit point.
type Archiver struct {
	base   string
	mirror *Mirror
	logger *slog.Logger
}

// NewArchiver creates an archiver rooted at base. mirror may be nil.
func NewArchiver(base string, mirror *Mirror, logger *slog.Logger) *Archiver {
	return &Archiver{base: base, mirror: mirror, logger: logger}
}

// Lookup reports whether a chunk's canonical file already exists. The
// extension varies with the dataset's delivery format, so the check globs
// the deterministic stem.
func (a *Archiver) Lookup(req history.Request, chunk history.Chunk) (string, bool) {
	pattern := history.ArchivePath(a.base, req, chunk, ".*")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// Commit expands the staged download to its payload, moves the payload to
// the canonical path, and mirrors it if a mirror is configured. Once the
// move has returned the chunk is permanently done.
func (a *Archiver) Commit(ctx context.Context, req history.Request, chunk history.Chunk, stagedPath string) (string, error) {
	payloads, err := Expand(stagedPath)
	if err != nil {
		return "", fmt.Errorf("expand staged download %s: %w", stagedPath, err)
	}
	if len(payloads) > 1 {
		a.logger.Warn("staged download expanded to multiple payloads, archiving the first",
			slog.String("staged", stagedPath),
			slog.Int("payloads", len(payloads)))
	}
	payload := payloads[0]

	target := history.ArchivePath(a.base, req, chunk, filepath.Ext(payload))
	if _, err := os.Stat(target); err == nil {
		// A concurrent or earlier commit won; the staged copy is redundant.
		removeAll(payloads)
		return target, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}
	if err := moveFile(payload, target); err != nil {
		return "", fmt.Errorf("commit %s: %w", target, err)
	}
	// Extra payloads from multi-member archives are not part of the
	// canonical layout; drop them rather than leak staging files.
	removeAll(payloads[1:])

	a.logger.Info("chunk archived",
		slog.String("path", target),
		slog.Int("chunk", chunk.Index),
		slog.String("range", chunk.Range()))

	if a.mirror != nil {
		key := filepath.ToSlash(filepath.Join(string(req.Dataset), filepath.Base(target)))
		if err := a.mirror.Upload(ctx, key, target); err != nil {
			// The local commit is already durable; a mirror failure must
			// not fail the chunk.
			a.logger.Warn("mirror upload failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
	return target, nil
}

// moveFile renames when possible and falls back to copy+remove across
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy content: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync target: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
