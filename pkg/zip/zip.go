// Package zip bundles collected artifacts into a single archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// Entry is one file to archive. Name is the slash-separated path inside the
// archive.
type Entry struct {
	Name string
	Path string
}

// Write streams entries into a zip archive on w. Duplicate names keep the
// first entry.
func Write(w io.Writer, entries []Entry) (int, error) {
	zw := zip.NewWriter(w)
	seen := make(map[string]bool, len(entries))
	written := 0
	for _, e := range entries {
		name := strings.TrimLeft(path.Clean(strings.ReplaceAll(e.Name, "\\", "/")), "/")
		if name == "" || name == "." || strings.HasPrefix(name, "../") || seen[name] {
			continue
		}
		seen[name] = true
		if err := addFile(zw, name, e.Path); err != nil {
			zw.Close()
			return written, err
		}
		written++
	}
	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("zip: close: %w", err)
	}
	return written, nil
}

func addFile(zw *zip.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", src, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("zip: stat %s: %w", src, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip: header %s: %w", src, err)
	}
	hdr.Name = name
	// Images are already compressed.
	hdr.Method = zip.Store
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip: create %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("zip: write %s: %w", name, err)
	}
	return nil
}
