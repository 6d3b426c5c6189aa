package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

const (
	maxFilenameLen   = 180
	maxQueryPieceLen = 20
	maxCollisions    = 9999
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafePiece replaces unsafe runs with _ and trims ._- from both ends. A
// positive maxLen caps the result.
func SafePiece(text string, maxLen int) string {
	cleaned := strings.Trim(unsafeChars.ReplaceAllString(text, "_"), "._-")
	if maxLen > 0 && len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen]
	}
	return cleaned
}

// SafeFilename is SafePiece capped at 180 bytes, defaulting to "export"
func SafeFilename(text string) string {
	cleaned := SafePiece(text, maxFilenameLen)
	if cleaned == "" {
		return "export"
	}
	return cleaned
}

// QueryPiece is the file name fragment for a search query: its first 20
// characters, sanitized.
func QueryPiece(query string) string {
	runes := []rune(strings.TrimSpace(query))
	if len(runes) > maxQueryPieceLen {
		runes = runes[:maxQueryPieceLen]
	}
	return SafePiece(string(runes), maxQueryPieceLen)
}

// BaseName joins prefix, query piece and the non-blank parts with _
func BaseName(prefix, queryPiece string, parts ...string) string {
	items := []string{prefix}
	if queryPiece != "" {
		items = append(items, queryPiece)
	}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return strings.Join(items, "_")
}

// UniquePath returns dir/filename, or the first dir/stem__N.ext that does not
// exist yet.
func UniquePath(fs afero.Fs, dir, filename string) (string, error) {
	path := filepath.Join(dir, filename)
	if ok, _ := afero.Exists(fs, path); !ok {
		return path, nil
	}
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for i := 1; i <= maxCollisions; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s__%d%s", stem, i, ext))
		if ok, _ := afero.Exists(fs, candidate); !ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not find unique filename for %s", filename)
}

// Writer saves single conversations under collision-free names
type Writer struct {
	Fs       afero.Fs
	Dir      string
	Exporter Exporter
}

// NewWriter creates a Writer for dir using format
func NewWriter(fs afero.Fs, dir, format string) (*Writer, error) {
	exp, err := NewExporter(format)
	if err != nil {
		return nil, err
	}
	return &Writer{Fs: fs, Dir: dir, Exporter: exp}, nil
}

// WriteConversation writes conv to <dir>/<sanitized base>.<ext> and returns
// the path it chose.
func (w *Writer) WriteConversation(base string, conv *internal.Conversation) (string, error) {
	ext := w.Exporter.Extension()
	if err := w.Fs.MkdirAll(w.Dir, 0755); err != nil {
		return "", &internal.ExportError{Format: ext, Path: w.Dir, Err: err}
	}
	path, err := UniquePath(w.Fs, w.Dir, SafeFilename(base)+"."+ext)
	if err != nil {
		return "", &internal.ExportError{Format: ext, Path: w.Dir, Err: err}
	}

	f, err := w.Fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", &internal.ExportError{Format: ext, Path: path, Err: err}
	}
	if err := w.Exporter.Export(conv, f); err != nil {
		_ = f.Close()
		return "", &internal.ExportError{Format: ext, Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &internal.ExportError{Format: ext, Path: path, Err: err}
	}
	return path, nil
}
