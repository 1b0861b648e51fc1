package history

import (
	"fmt"
	"path/filepath"
)

// ArchiveName derives the canonical archive filename for one chunk. The name
// deterministically encodes market, symbol, dataset and chunk bounds, so
// re-running the same request always targets the same path. Presence of that
// path is the sole resume signal.
func ArchiveName(req Request, chunk Chunk, ext string) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s%s",
		req.Market, req.Symbol, req.Dataset,
		chunk.Start.Format(DateLayout), chunk.End.Format(DateLayout), ext)
}

// ArchivePath resolves the canonical target path below the archive base:
// <base>/<dataset>/<market>_<symbol>_<dataset>_<start>_<end><ext>.
func ArchivePath(base string, req Request, chunk Chunk, ext string) string {
	return filepath.Join(base, string(req.Dataset), ArchiveName(req, chunk, ext))
}

// StagingGlob is the filename pattern a chunk's export is expected to match
// in the staging directory. The platform names downloads after the symbol
// with its own suffix conventions (zip for order book, csv.gz for trades),
// so the pattern keys on the symbol and lets the watcher pick the most
// recent match. Duplicate exports from a retried trigger are tolerated by
// construction.
func StagingGlob(req Request) string {
	return req.Symbol + "*"
}
