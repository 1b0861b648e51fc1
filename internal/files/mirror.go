package files

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gocloud.dev/blob"

	// Bucket schemes resolvable by URL. Cloud providers (s3://, gs://) plug
	// in the same way by adding their driver import.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// Mirror replicates committed archive files to a blob bucket. Mirroring is
// strictly best-effort: the local move is the commit point and a mirror
// failure never rolls a chunk back.
type Mirror struct {
	bucket *blob.Bucket
	url    string
	logger *slog.Logger
}

// OpenMirror opens the bucket behind a gocloud URL such as
// file:///backup/archive or mem://.
func OpenMirror(ctx context.Context, url string, logger *slog.Logger) (*Mirror, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open mirror bucket %s: %w", url, err)
	}
	return &Mirror{bucket: bucket, url: url, logger: logger}, nil
}

// NewMirror wraps an already-open bucket; used by tests with memblob.
func NewMirror(bucket *blob.Bucket, logger *slog.Logger) *Mirror {
	return &Mirror{bucket: bucket, logger: logger}
}

// Upload streams the file at path into the bucket under key.
func (m *Mirror) Upload(ctx context.Context, key, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	w, err := m.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open bucket writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s: %w", key, err)
	}
	m.logger.Info("archive file mirrored",
		slog.String("key", key),
		slog.String("bucket", m.url))
	return nil
}

// Close releases the bucket.
func (m *Mirror) Close() error {
	return m.bucket.Close()
}
