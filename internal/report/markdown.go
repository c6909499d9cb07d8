package report

import (
	"fmt"
	"strings"

	"binpatch/internal/binpatch/styles"
	"binpatch/internal/engine"
)

// Markdown renders r as a markdown document.
func Markdown(r *engine.Report, opts Options) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# binpatch: %s\n\n", Status(r))
	fmt.Fprintf(&b, "- **Target:** `%s`\n", r.Target)
	fmt.Fprintf(&b, "- **Size:** %s\n", engine.FormatSize(r.Size))
	if opts.Image != nil {
		fmt.Fprintf(&b, "- **Format:** %s", opts.Image.Format)
		if opts.Image.Arch != "" {
			fmt.Fprintf(&b, " (%s)", opts.Image.Arch)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "- **Digest:** `%s` → `%s`\n", r.OriginalDigest, r.FinalDigest)
	if r.DryRun {
		fmt.Fprintf(&b, "- **Candidates:** %d\n", r.Candidates)
	} else {
		fmt.Fprintf(&b, "- **Applied:** %d\n", r.Applied)
	}
	if r.Failed > 0 {
		fmt.Fprintf(&b, "- **Failed:** %d\n", r.Failed)
	}
	if r.Backup != nil {
		fmt.Fprintf(&b, "- **Backup:** `%s` (%s)\n", r.Backup.Path, r.BackupStatus)
	}
	b.WriteString("\n")

	b.WriteString("## Patterns\n\n")
	b.WriteString("| Pattern | Sites | Description |\n|---|---|---|\n")
	for _, m := range r.Matches {
		desc := m.Description
		if m.Count == 0 {
			desc = strings.TrimSpace(desc + " (not found, may not be needed)")
		}
		fmt.Fprintf(&b, "| `%s` | %d | %s |\n", m.PatternID, m.Count, desc)
	}
	b.WriteString("\n")

	sites := Sites(r, opts)
	if len(sites) > 0 {
		b.WriteString("## Sites\n\n")
		b.WriteString("| Offset | Pattern | Before | After | Location |\n|---|---|---|---|---|\n")
		for _, s := range sites {
			after := "`" + s.After + "`"
			if !s.Succeeded {
				after = "failed: " + s.Error
			}
			fmt.Fprintf(&b, "| `%s` | %s | `%s` | %s | %s |\n", s.OffsetHex, s.Pattern, s.Before, after, location(s))
		}
		b.WriteString("\n")

		for _, s := range sites {
			if len(s.BeforeAsm) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s @ %s\n\n```asm\n", s.Pattern, s.OffsetHex)
			b.WriteString("; before\n")
			b.WriteString(s.BeforeAsm.String())
			if len(s.AfterAsm) > 0 {
				b.WriteString("\n; after\n")
				b.WriteString(s.AfterAsm.String())
			}
			b.WriteString("\n```\n\n")
		}
	}

	if len(opts.Markers) > 0 {
		b.WriteString("## Markers\n\n")
		for _, m := range opts.Markers {
			state := "absent"
			if m.Present {
				state = "present"
			}
			fmt.Fprintf(&b, "- `%s`: %s\n", m.Name, state)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func location(s Site) string {
	switch {
	case s.Symbol != "":
		return fmt.Sprintf("%s `%s`", s.Section, s.Symbol)
	case s.Section != "":
		return fmt.Sprintf("%s %s", s.Section, s.VA)
	default:
		return "-"
	}
}

// Render renders the markdown report for a terminal of the given width.
func Render(r *engine.Report, opts Options, width int) string {
	return styles.RenderMarkdown(Markdown(r, opts), width)
}
