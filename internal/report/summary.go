package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"

	"binpatch/internal/binpatch/styles"
	"binpatch/internal/engine"
)

// Summary is the short styled block printed by non-interactive runs.
func Summary(r *engine.Report) string {
	var lines []string
	lines = append(lines, styles.Title.Render("binpatch "+Status(r)))

	row := func(label, value string) {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			styles.Label.Render(label), styles.Value.Render(value)))
	}
	row("target", r.Target)
	row("size", engine.FormatSize(r.Size))
	row("digest", fmt.Sprintf("%s -> %s", r.OriginalDigest, r.FinalDigest))
	if r.Backup != nil {
		row("backup", fmt.Sprintf("%s (%s)", r.Backup.Path, r.BackupStatus))
	}

	for _, m := range r.Matches {
		if m.Count == 0 {
			lines = append(lines, styles.Warning.Render(fmt.Sprintf("  %s: not found (may not be needed)", m.PatternID)))
			continue
		}
		lines = append(lines, styles.Success.Render(fmt.Sprintf("  %s: found at %d locations", m.PatternID, m.Count)))
	}
	for _, rec := range r.Records {
		off := styles.Offset.Render(fmt.Sprintf("0x%08X", rec.Offset))
		if rec.Succeeded {
			lines = append(lines, fmt.Sprintf("    %s %s", off, styles.Muted.Render(rec.PatternID)))
		} else {
			lines = append(lines, fmt.Sprintf("    %s %s", off, styles.Failure.Render(rec.Reason())))
		}
	}

	var total string
	if r.DryRun {
		total = fmt.Sprintf("%d patches would be applied", r.Candidates)
	} else {
		total = fmt.Sprintf("%d patches applied", r.Applied)
	}
	if r.Failed > 0 {
		total += styles.Failure.Render(fmt.Sprintf(", %d failed", r.Failed))
	}
	lines = append(lines, styles.Value.Render(total))

	return strings.Join(lines, "\n")
}
