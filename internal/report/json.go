package report

import (
	"encoding/json"

	"binpatch/internal/build"
	"binpatch/internal/engine"
)

// Document is the JSON form of a run.
type Document struct {
	Target         string         `json:"target"`
	Status         string         `json:"status"`
	DryRun         bool           `json:"dry_run"`
	Size           int            `json:"size"`
	Format         string         `json:"format,omitempty"`
	Arch           string         `json:"arch,omitempty"`
	Applied        int            `json:"applied"`
	Candidates     int            `json:"candidates"`
	Failed         int            `json:"failed"`
	OriginalDigest string         `json:"original_digest"`
	FinalDigest    string         `json:"final_digest"`
	Backup         string         `json:"backup,omitempty"`
	BackupStatus   string         `json:"backup_status,omitempty"`
	Trail          []string       `json:"trail"`
	Patterns       []PatternCount `json:"patterns"`
	Sites          []Site         `json:"sites"`
	Markers        []build.Marker `json:"markers,omitempty"`
}

type PatternCount struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count"`
}

// NewDocument builds the JSON document for r.
func NewDocument(r *engine.Report, opts Options) Document {
	doc := Document{
		Target:         r.Target,
		Status:         Status(r),
		DryRun:         r.DryRun,
		Size:           r.Size,
		Applied:        r.Applied,
		Candidates:     r.Candidates,
		Failed:         r.Failed,
		OriginalDigest: r.OriginalDigest.String(),
		FinalDigest:    r.FinalDigest.String(),
		Patterns:       []PatternCount{},
		Sites:          Sites(r, opts),
		Markers:        opts.Markers,
	}
	if opts.Image != nil {
		doc.Format = opts.Image.Format.String()
		doc.Arch = opts.Image.Arch
	}
	if r.Backup != nil {
		doc.Backup = r.Backup.Path
		doc.BackupStatus = r.BackupStatus.String()
	}
	for _, s := range r.Trail {
		doc.Trail = append(doc.Trail, s.String())
	}
	for _, m := range r.Matches {
		doc.Patterns = append(doc.Patterns, PatternCount{ID: m.PatternID, Description: m.Description, Count: m.Count})
	}
	return doc
}

// JSON marshals the document for r, indented.
func JSON(r *engine.Report, opts Options) ([]byte, error) {
	return json.MarshalIndent(NewDocument(r, opts), "", "  ")
}
