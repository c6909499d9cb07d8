package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"binpatch/internal/engine"
	"binpatch/internal/integrity"
)

// NotesName is the file written next to the target.
const NotesName = "PATCH_NOTES.md"

// NotesPath returns where the notes for target are written.
func NotesPath(target string) string {
	return filepath.Join(filepath.Dir(target), NotesName)
}

// WriteNotes writes the patch notes for r next to the target and returns
// their path. Dry runs are refused; they must not leave files behind.
func WriteNotes(r *engine.Report, opts Options, now time.Time) (string, error) {
	if r.DryRun {
		return "", fmt.Errorf("patch notes are not written for dry runs")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<!-- generated by binpatch on %s -->\n\n", now.UTC().Format(time.RFC3339))
	b.WriteString(Markdown(r, opts))
	b.WriteString("## Restoring\n\n")
	if r.Backup != nil {
		fmt.Fprintf(&b, "Copy `%s` over `%s` to undo every patch.\n", filepath.Base(r.Backup.Path), filepath.Base(r.Target))
	} else {
		b.WriteString("No backup was recorded for this run.\n")
	}

	path := NotesPath(r.Target)
	if err := integrity.WriteFileAtomic(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write patch notes: %w", err)
	}
	return path, nil
}
