package files_test

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybithist/internal/files"
)

func writeZip(t *testing.T, path string, members map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeGzip(t *testing.T, path string, content []byte) {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(content)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExpandPassesThroughPlainFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BTCUSDT_trades.csv")
	require.NoError(t, os.WriteFile(path, []byte("ts,price,qty\n"), 0o644))

	payloads, err := files.Expand(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, payloads)
}

func TestExpandGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BTCUSDT_trades.csv.gz")
	writeGzip(t, path, []byte("ts,price,qty\n1,100,0.5\n"))

	payloads, err := files.Expand(path)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, filepath.Join(dir, "BTCUSDT_trades.csv"), payloads[0])

	content, err := os.ReadFile(payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "ts,price,qty\n1,100,0.5\n", string(content))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "gzip container should be removed")
}

func TestExpandZipFlattensMemberPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BTCUSDT_book.zip")
	writeZip(t, path, map[string][]byte{
		"exports/2026-01-01/BTCUSDT_book.data": []byte("book"),
	})

	payloads, err := files.Expand(path)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, filepath.Join(dir, "BTCUSDT_book.data"), payloads[0])
}

func TestExpandZipWithGzipMembers(t *testing.T) {
	dir := t.TempDir()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write([]byte("ts,price,qty\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	path := filepath.Join(dir, "BTCUSDT_trades.zip")
	writeZip(t, path, map[string][]byte{
		"BTCUSDT_trades.csv.gz": gz.Bytes(),
	})

	payloads, err := files.Expand(path)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, filepath.Join(dir, "BTCUSDT_trades.csv"), payloads[0])

	content, err := os.ReadFile(payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "ts,price,qty\n", string(content))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "zip container should be removed")
}

func TestExpandEmptyZipFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.zip")
	writeZip(t, path, nil)

	_, err := files.Expand(path)
	assert.Error(t, err)
}
