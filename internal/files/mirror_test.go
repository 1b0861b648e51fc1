package files_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"bybithist/internal/files"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMirrorUpload(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	m := files.NewMirror(bucket, testLogger())
	defer m.Close()

	path := filepath.Join(t.TempDir(), "BTCUSDT.csv")
	require.NoError(t, os.WriteFile(path, []byte("ts,price\n"), 0o644))

	require.NoError(t, m.Upload(context.Background(), "trades/BTCUSDT.csv", path))

	got, err := bucket.ReadAll(context.Background(), "trades/BTCUSDT.csv")
	require.NoError(t, err)
	assert.Equal(t, "ts,price\n", string(got))
}

func TestMirrorUploadMissingFile(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	m := files.NewMirror(bucket, testLogger())
	defer m.Close()

	err := m.Upload(context.Background(), "trades/missing.csv", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestOpenMirrorFileURL(t *testing.T) {
	dir := t.TempDir()
	m, err := files.OpenMirror(context.Background(), "file://"+dir, testLogger())
	require.NoError(t, err)
	defer m.Close()

	path := filepath.Join(t.TempDir(), "BTCUSDT.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, m.Upload(context.Background(), "BTCUSDT.csv", path))

	_, err = os.Stat(filepath.Join(dir, "BTCUSDT.csv"))
	assert.NoError(t, err)
}
