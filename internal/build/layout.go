// Package build checks the directory a target image lives in before it is
// patched.
package build

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Validator decides whether patching may start. A false result aborts the
// run before any byte is touched.
type Validator interface {
	Validate() bool
}

// Layout validates that the target exists and that the required paths
// (relative to the target's directory) are present.
type Layout struct {
	Target   string
	Required []string
	Logger   *log.Logger
}

// NewLayout returns a Layout validator for target.
func NewLayout(target string, required []string, logger *log.Logger) *Layout {
	return &Layout{Target: target, Required: required, Logger: logger}
}

// Root is the directory required paths are resolved against.
func (l *Layout) Root() string {
	return filepath.Dir(l.Target)
}

// Missing returns every expected path that does not exist, target first.
func (l *Layout) Missing() []string {
	var missing []string
	if info, err := os.Stat(l.Target); err != nil || info.IsDir() {
		missing = append(missing, l.Target)
	}
	for _, rel := range l.Required {
		p := filepath.Join(l.Root(), filepath.FromSlash(rel))
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	return missing
}

func (l *Layout) Validate() bool {
	missing := l.Missing()
	if l.Logger != nil {
		for _, p := range missing {
			l.Logger.Error("Missing", "path", p)
		}
		if len(missing) == 0 {
			l.Logger.Info("Build structure valid", "root", l.Root(), "required", len(l.Required))
		}
	}
	return len(missing) == 0
}

// Marker is a directory whose presence next to the target is reported.
type Marker struct {
	Name    string
	Path    string
	Present bool
}

// DetectMarkers reports which of names exist as directories in dir. It only
// looks; nothing is renamed or removed.
func DetectMarkers(dir string, names []string) []Marker {
	markers := make([]Marker, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		markers = append(markers, Marker{
			Name:    name,
			Path:    p,
			Present: err == nil && info.IsDir(),
		})
	}
	return markers
}
