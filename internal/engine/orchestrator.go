// Package engine runs a full patch pass over one image: load, back up, scan
// every registered signature, apply replacements and write the result back
// once.
package engine

import (
	"bytes"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"binpatch/internal/integrity"
	"binpatch/internal/patch"
)

// State is the position of a run in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StateBackedUp
	StateScanned
	StatePatched
	StateWritten
	StateUnchanged
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StateBackedUp:
		return "backed-up"
	case StateScanned:
		return "scanned"
	case StatePatched:
		return "patched"
	case StateWritten:
		return "written"
	case StateUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Options control a run.
type Options struct {
	// DryRun reports would-be patches without creating a backup or writing.
	DryRun bool
	// BackupSuffix names the backup file; empty means integrity.DefaultBackupSuffix.
	BackupSuffix string
}

// PatchRecord is the outcome of one attempted patch.
type PatchRecord struct {
	PatternID string
	Offset    int
	Before    []byte
	After     []byte
	Succeeded bool
	// Candidate marks records produced by a dry run.
	Candidate bool
	Err       error
}

// Reason returns why the patch failed, or "" on success.
func (r PatchRecord) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// PatternMatch is the number of sites found for one pattern.
type PatternMatch struct {
	PatternID   string
	Description string
	Count       int
}

// Report is everything a run produced. Collaborators (renderers, notes,
// history) consume it; the engine itself never persists it.
type Report struct {
	Target         string
	DryRun         bool
	Size           int
	Applied        int
	Candidates     int
	Failed         int
	Records        []PatchRecord
	Matches        []PatternMatch
	// Data is the image after the pass: the written content, or the
	// patched private copy in a dry run.
	Data           []byte
	OriginalDigest integrity.Digest
	FinalDigest    integrity.Digest
	Backup         *integrity.Backup
	BackupStatus   integrity.BackupStatus
	State          State
	Trail          []State
}

// Written reports whether the target file was replaced.
func (r *Report) Written() bool {
	return r.State == StateWritten
}

// Offsets returns the offsets of successful (or, in a dry run, successful
// candidate) records in the order they were attempted.
func (r *Report) Offsets() []int {
	var out []int
	for _, rec := range r.Records {
		if rec.Succeeded {
			out = append(out, rec.Offset)
		}
	}
	return out
}

// Orchestrator drives the registry through the scanner and patcher.
type Orchestrator struct {
	registry *patch.Registry
	opts     Options
	logger   *log.Logger
	state    State

	apply func(buf []byte, offset int, repl []byte) error
}

// New returns an orchestrator for registry. A nil logger discards output.
func New(registry *patch.Registry, opts Options, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Orchestrator{
		registry: registry,
		opts:     opts,
		logger:   logger,
		apply:    patch.Apply,
	}
}

// State returns the state reached by the last run.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) transition(r *Report, s State) {
	o.state = s
	r.State = s
	r.Trail = append(r.Trail, s)
	o.logger.Debug("State", "state", s)
}

// Run patches the image at path. Load, backup and write failures abort the
// run and are returned; failures of individual sites are recorded in the
// report and the run continues.
func (o *Orchestrator) Run(path string) (*Report, error) {
	o.state = StateIdle
	report := &Report{Target: path, DryRun: o.opts.DryRun, Trail: []State{StateIdle}}

	o.logger.Info("Analyzing", "file", path, "dry-run", o.opts.DryRun)

	im, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	o.transition(report, StateLoaded)
	report.Size = len(im.Data)
	report.OriginalDigest = im.OriginalDigest
	o.logger.Info("Loaded image", "size", FormatSize(len(im.Data)), "digest", im.OriginalDigest)

	if !o.opts.DryRun {
		b, status, err := integrity.CreateBackup(path, o.opts.BackupSuffix)
		if err != nil {
			return nil, &IOError{Op: "backup", Path: b.Path, Err: err}
		}
		report.Backup = &b
		report.BackupStatus = status
		switch status {
		case integrity.BackupCreated:
			o.logger.Info("Created backup", "path", b.Path)
		default:
			o.logger.Info("Backup already exists", "path", b.Path)
		}
		o.transition(report, StateBackedUp)
	}

	records, matches := o.pass(im.Data, o.opts.DryRun)
	o.transition(report, StateScanned)

	report.Records = records
	report.Matches = matches
	report.Data = im.Data
	succeeded := 0
	for _, rec := range records {
		if rec.Succeeded {
			succeeded++
		} else {
			report.Failed++
		}
	}
	if o.opts.DryRun {
		report.Candidates = succeeded
	} else {
		report.Applied = succeeded
	}
	o.transition(report, StatePatched)

	im.CurrentDigest = integrity.Sum(im.Data)
	report.FinalDigest = im.CurrentDigest

	if o.opts.DryRun || report.Applied == 0 {
		o.transition(report, StateUnchanged)
		o.logger.Info("Image left untouched", "candidates", report.Candidates, "failed", report.Failed)
		return report, nil
	}

	if err := im.WriteBack(); err != nil {
		return nil, err
	}
	o.transition(report, StateWritten)
	o.logger.Info("Patched image saved", "patches", report.Applied, "digest", im.CurrentDigest)

	return report, nil
}

// PatchBuffer applies every pattern to buf in place and returns the records
// and the number of successful patches. No file is touched.
func (o *Orchestrator) PatchBuffer(buf []byte) ([]PatchRecord, int) {
	records, _ := o.pass(buf, false)
	n := 0
	for _, rec := range records {
		if rec.Succeeded {
			n++
		}
	}
	return records, n
}

// pass scans and patches buf pattern by pattern, so each pattern sees the
// bytes left by the patterns before it. Dry runs patch the same private
// buffer and only mark their records as candidates.
func (o *Orchestrator) pass(buf []byte, dryRun bool) ([]PatchRecord, []PatternMatch) {
	var records []PatchRecord
	var matches []PatternMatch

	for _, spec := range o.registry.Entries() {
		offsets := patch.FindAll(buf, spec.Signature)
		matches = append(matches, PatternMatch{
			PatternID:   spec.ID,
			Description: spec.Description,
			Count:       len(offsets),
		})

		if len(offsets) == 0 {
			o.logger.Warn("Pattern not found (may not be needed)", "pattern", spec.ID)
			continue
		}
		o.logger.Info("Found pattern", "pattern", spec.ID, "locations", len(offsets))

		for _, off := range offsets {
			rec := PatchRecord{
				PatternID: spec.ID,
				Offset:    off,
				Candidate: dryRun,
				Before:    window(buf, off, len(spec.Replacement)),
			}

			if err := o.apply(buf, off, spec.Replacement); err != nil {
				rec.Err = err
				o.logger.Error("Failed to apply patch", "pattern", spec.ID, "offset", hexOffset(off), "error", err)
			} else {
				rec.Succeeded = true
				rec.After = window(buf, off, len(spec.Replacement))
				o.logger.Debug("Patched site", "pattern", spec.ID, "offset", hexOffset(off),
					"before", patch.FormatHex(rec.Before), "after", patch.FormatHex(rec.After))
			}
			records = append(records, rec)
		}
	}

	return records, matches
}

// window copies up to n bytes of buf starting at off.
func window(buf []byte, off, n int) []byte {
	if off < 0 || off >= len(buf) {
		return nil
	}
	end := off + n
	if end > len(buf) {
		end = len(buf)
	}
	return bytes.Clone(buf[off:end])
}

func hexOffset(off int) string {
	return fmt.Sprintf("0x%08X", off)
}

// FormatSize renders a byte count with thousands separators.
func FormatSize(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d bytes", n)
}
