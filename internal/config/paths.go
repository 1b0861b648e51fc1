package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the single source of truth for the filesystem layout. Staging is
// where the browser drops exports; Archive is the canonical output tree.
type Paths struct {
	DataDir    string
	StagingDir string
	ArchiveDir string
	LogsDir    string
}

// NewPaths lays the standard directories out under dataDir.
func NewPaths(dataDir string) (*Paths, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir %s: %w", dataDir, err)
	}
	return &Paths{
		DataDir:    abs,
		StagingDir: filepath.Join(abs, "staging"),
		ArchiveDir: filepath.Join(abs, "archive"),
		LogsDir:    filepath.Join(abs, "logs"),
	}, nil
}

// EnsureDirectories creates every directory the run needs.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.StagingDir, p.ArchiveDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LogPath resolves a log filename below the logs directory.
func (p *Paths) LogPath(name string) string {
	return filepath.Join(p.LogsDir, name)
}
