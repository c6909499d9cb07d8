// Package history keeps a sqlite ledger of binpatch runs so repeated runs
// against the same build can be compared.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"binpatch/internal/engine"
	"binpatch/internal/patch"
)

// Run is one recorded invocation.
type Run struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	Target         string    `gorm:"index; not null" json:"target"`
	StartedAt      time.Time `json:"started_at"`
	DryRun         bool      `json:"dry_run"`
	Status         string    `json:"status"`
	Size           int       `json:"size"`
	Applied        int       `json:"applied"`
	Candidates     int       `json:"candidates"`
	Failed         int       `json:"failed"`
	OriginalDigest string    `json:"original_digest"`
	FinalDigest    string    `json:"final_digest"`
	BackupPath     string    `json:"backup_path,omitempty"`
	Sites          []Site    `gorm:"constraint:OnDelete:CASCADE" json:"sites"`
}

// Site is one patch attempt of a run.
type Site struct {
	ID        uint64 `gorm:"primaryKey" json:"-"`
	RunID     uint64 `gorm:"index" json:"-"`
	PatternID string `json:"pattern"`
	Offset    int    `json:"offset"`
	Before    string `json:"before"`
	After     string `json:"after,omitempty"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// Open opens (creating if needed) the ledger at path and migrates it.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("error opening history %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Run{}, &Site{}); err != nil {
		return nil, fmt.Errorf("error migrating history: %w", err)
	}
	return db, nil
}

// Close releases the connection behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewRun converts an engine report into a ledger row with its sites.
func NewRun(r *engine.Report, startedAt time.Time) *Run {
	run := &Run{
		Target:         r.Target,
		StartedAt:      startedAt.UTC(),
		DryRun:         r.DryRun,
		Status:         r.State.String(),
		Size:           r.Size,
		Applied:        r.Applied,
		Candidates:     r.Candidates,
		Failed:         r.Failed,
		OriginalDigest: r.OriginalDigest.String(),
		FinalDigest:    r.FinalDigest.String(),
	}
	if r.Backup != nil {
		run.BackupPath = r.Backup.Path
	}
	for _, rec := range r.Records {
		run.Sites = append(run.Sites, Site{
			PatternID: rec.PatternID,
			Offset:    rec.Offset,
			Before:    patch.FormatHex(rec.Before),
			After:     patch.FormatHex(rec.After),
			Succeeded: rec.Succeeded,
			Error:     rec.Reason(),
		})
	}
	return run
}

// Record persists r and returns the stored run.
func Record(db *gorm.DB, r *engine.Report, startedAt time.Time) (*Run, error) {
	run := NewRun(r, startedAt)
	if err := db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("error recording run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first, optionally limited to one
// target. A limit of zero or less returns every run.
func List(db *gorm.DB, target string, limit int) ([]Run, error) {
	var runs []Run
	q := db.Preload("Sites", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Order("id desc")
	if target != "" {
		q = q.Where("target = ?", target)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Last returns the newest run for target, or nil if there is none.
func Last(db *gorm.DB, target string) (*Run, error) {
	var run Run
	err := db.Preload("Sites").Where("target = ?", target).Order("id desc").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
