package files

import (
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Expand turns a staged download into its payload files. The platform
// delivers order-book exports as .zip (members may themselves be .gz) and
// trade exports as .csv.gz; anything else passes through untouched. The
// container file is deleted after successful expansion.
func Expand(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		members, err := unzip(path)
		if err != nil {
			return nil, err
		}
		var payloads []string
		for _, m := range members {
			if strings.EqualFold(filepath.Ext(m), ".gz") {
				inner, err := gunzip(m)
				if err != nil {
					return nil, err
				}
				payloads = append(payloads, inner)
			} else {
				payloads = append(payloads, m)
			}
		}
		if len(payloads) == 0 {
			return nil, fmt.Errorf("zip archive %s has no members", path)
		}
		return payloads, nil
	case ".gz":
		inner, err := gunzip(path)
		if err != nil {
			return nil, err
		}
		return []string{inner}, nil
	default:
		return []string{path}, nil
	}
}

// unzip extracts every member next to the archive and removes the archive.
func unzip(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	defer r.Close()

	dir := filepath.Dir(path)
	var members []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Flatten: member paths from the platform carry no directory
		// structure worth keeping, and stripping them forecloses zip-slip.
		dest := filepath.Join(dir, filepath.Base(f.Name))
		if err := extractMember(f, dest); err != nil {
			return nil, err
		}
		members = append(members, dest)
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("remove zip %s: %w", path, err)
	}
	return members, nil
}

func extractMember(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip member %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// gunzip decompresses path into the same name minus the .gz suffix and
// removes the original.
func gunzip(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("read gzip %s: %w", path, err)
	}
	defer zr.Close()

	dest := strings.TrimSuffix(path, filepath.Ext(path))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("decompress %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove gzip %s: %w", path, err)
	}
	return dest, nil
}
