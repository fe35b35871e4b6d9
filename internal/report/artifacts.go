package report

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/kestrel-data/visionproof/internal/fsutil"
	"github.com/kestrel-data/visionproof/internal/security"
)

// ArtifactPath returns the filename a run's artifact lives at under
// dir. The run id is sanitized the same way WriteArtifacts sanitizes
// it, so readers and the writer agree on the name.
func ArtifactPath(dir, runID, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("run_%s.%s", security.SanitizeFilename(runID), ext))
}

// WriteArtifacts renders JSON, CSV and text reports for a run into dir,
// named after the run id. It returns the written paths. The run id is
// sanitized before it becomes part of a filename, and every target path
// is checked against dir so a hostile id cannot escape it.
func WriteArtifacts(fsys fsutil.FileSystem, dir string, s Summary) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	renderers := []struct {
		ext    string
		render func(*bytes.Buffer) error
	}{
		{"json", func(buf *bytes.Buffer) error { return WriteJSON(buf, s) }},
		{"csv", func(buf *bytes.Buffer) error { return WriteCSV(buf, s) }},
		{"txt", func(buf *bytes.Buffer) error { return WriteText(buf, s) }},
	}

	var written []string
	for _, r := range renderers {
		path := ArtifactPath(dir, s.RunID, r.ext)
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			return written, err
		}

		var buf bytes.Buffer
		if err := r.render(&buf); err != nil {
			return written, fmt.Errorf("render %s: %w", r.ext, err)
		}
		if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}

	return written, nil
}
