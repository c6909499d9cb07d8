// Package report turns an engine.Report into something a person or a script
// can read: markdown (rendered with glamour), JSON, a short styled summary
// and the patch notes file.
package report

import (
	"fmt"

	"binpatch/internal/build"
	"binpatch/internal/disasm"
	"binpatch/internal/engine"
	"binpatch/internal/imagex"
	"binpatch/internal/patch"
)

// Options carries the optional context a report is decorated with.
type Options struct {
	// Image describes sites by section and symbol. Nil means offsets only.
	Image *imagex.Image
	// Arch overrides the image architecture for disassembly.
	Arch string
	// Markers found next to the target.
	Markers []build.Marker
	// Data is the image the records were applied to (engine.Report.Data).
	// Without it only the signature bytes are disassembled.
	Data []byte
}

// ContextSize is the number of bytes decoded from each site, so the
// instruction a signature ends in is shown whole.
const ContextSize = 24

// maxInsts caps the instructions shown per site.
const maxInsts = 4

func (o Options) arch() (disasm.Arch, bool) {
	if o.Arch != "" {
		return disasm.ParseArch(o.Arch), true
	}
	if o.Image != nil && o.Image.Arch != "" {
		return disasm.ParseArch(o.Image.Arch), true
	}
	return "", false
}

// Site is one patch record with its location resolved.
type Site struct {
	Pattern   string        `json:"pattern"`
	Offset    int           `json:"offset"`
	OffsetHex string        `json:"offset_hex"`
	Before    string        `json:"before"`
	After     string        `json:"after,omitempty"`
	Succeeded bool          `json:"succeeded"`
	Candidate bool          `json:"candidate,omitempty"`
	Error     string        `json:"error,omitempty"`
	Section   string        `json:"section,omitempty"`
	VA        string        `json:"va,omitempty"`
	Symbol    string        `json:"symbol,omitempty"`
	Addr      uint64        `json:"-"`
	Exec      bool          `json:"-"`
	BeforeAsm disasm.Stream `json:"-"`
	AfterAsm  disasm.Stream `json:"-"`
}

// Sites resolves every record of r.
func Sites(r *engine.Report, opts Options) []Site {
	arch, haveArch := opts.arch()
	out := make([]Site, 0, len(r.Records))
	for _, rec := range r.Records {
		s := Site{
			Pattern:   rec.PatternID,
			Offset:    rec.Offset,
			OffsetHex: fmt.Sprintf("0x%08X", rec.Offset),
			Before:    patch.FormatHex(rec.Before),
			After:     patch.FormatHex(rec.After),
			Succeeded: rec.Succeeded,
			Candidate: rec.Candidate,
			Error:     rec.Reason(),
		}
		if opts.Image != nil {
			loc := opts.Image.Locate(uint64(rec.Offset))
			if loc.Mapped {
				s.Section = loc.Section
				s.VA = fmt.Sprintf("0x%X", loc.VA)
				s.Addr = loc.VA
				s.Exec = loc.Exec
				if loc.Symbol != "" {
					s.Symbol = fmt.Sprintf("%s+0x%X", loc.Symbol, loc.SymbolOff)
				}
				if loc.Exec && haveArch {
					before, after := window(opts.Data, rec)
					s.BeforeAsm = disasm.Limit(arch, before, loc.VA, maxInsts)
					if rec.Succeeded {
						s.AfterAsm = disasm.Limit(arch, after, loc.VA, maxInsts)
					}
				}
			}
		}
		out = append(out, s)
	}
	return out
}

// window returns the bytes at a site before and after its patch, extended
// with up to ContextSize bytes of the image that follow it. Later patches
// inside the window stay visible in both.
func window(data []byte, rec engine.PatchRecord) (before, after []byte) {
	if rec.Offset < 0 || rec.Offset+len(rec.Before) > len(data) {
		return rec.Before, rec.After
	}
	end := min(rec.Offset+ContextSize, len(data))
	before = append([]byte(nil), data[rec.Offset:end]...)
	copy(before, rec.Before)
	after = append([]byte(nil), data[rec.Offset:end]...)
	copy(after, rec.After)
	return before, after
}

// Status is a one-word description of how the run ended.
func Status(r *engine.Report) string {
	switch {
	case r.DryRun:
		return "dry run"
	case r.Written():
		return "patched"
	case r.Failed > 0:
		return "failed"
	default:
		return "unchanged"
	}
}
