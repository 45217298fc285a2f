// Package artifact issues per-invocation output paths. Earlier
// revisions of this pipeline wrote every result to fixed shared
// filenames (slope.png, slope.pgw, dem.tif), so one request's
// in-flight write could be read by another request's consumer. Every
// invocation now gets its own uuid-scoped directory and no artifact
// path is ever shared between invocations.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Scope is a single invocation's private output directory.
type Scope struct {
	dir string
}

// NewScope creates a fresh uuid-named directory under root.
func NewScope(root string) (*Scope, error) {
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create scope dir: %w", err)
	}
	return &Scope{dir: dir}, nil
}

// Dir returns the scope directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Path returns the scoped path for a named artifact.
func (s *Scope) Path(name string) string {
	return filepath.Join(s.dir, SanitizeFilename(name))
}

// ImagePath returns the scoped path for the slope raster in the given
// format.
func (s *Scope) ImagePath(format string) string {
	ext := strings.ToLower(format)
	if ext == "jpeg" {
		ext = "jpg"
	}
	return s.Path("slope." + ext)
}

// FlatAreasPath returns the scoped path for the flat-area KML.
func (s *Scope) FlatAreasPath() string {
	return s.Path("flat_areas.kml")
}

// Remove deletes the scope directory and everything in it.
func (s *Scope) Remove() error {
	return os.RemoveAll(s.dir)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// SanitizeFilename removes or replaces invalid characters in filenames.
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	return strings.Trim(result, " .")
}
