package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/davecgh/go-spew/spew"

	"binpatch/internal/build"
	"binpatch/internal/config"
	"binpatch/internal/engine"
	"binpatch/internal/history"
	"binpatch/internal/imagex"
	"binpatch/internal/logging"
	"binpatch/internal/report"
)

// runOptions is everything the root command needs, resolved from flags.
type runOptions struct {
	Target        string
	ConfigPath    string
	DryRun        bool
	NoBinaryPatch bool
	Debug         bool
	Notes         bool
	History       string
	Arch          string
}

// outcome is what a run produced for the output layer.
type outcome struct {
	Report  *engine.Report // nil when binary patching was skipped
	Config  *config.Config
	Image   *imagex.Image
	Markers []build.Marker
	Notes   string
	RunID   uint64

	// Previous is the last recorded run of the same target, if any.
	Previous *history.Run
}

func (o *outcome) reportOptions() report.Options {
	opts := report.Options{Image: o.Image, Markers: o.Markers}
	if o.Config != nil {
		opts.Arch = o.Config.Arch
	}
	if o.Report != nil {
		opts.Data = o.Report.Data
	}
	return opts
}

// runPatch validates the build, patches the target and hands the report to
// the notes writer and the history ledger.
func runPatch(opts runOptions, logger *log.Logger) (*outcome, error) {
	target, err := filepath.Abs(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target: %w", err)
	}

	searchDirs := []string{filepath.Dir(target)}
	if cwd, err := os.Getwd(); err == nil {
		searchDirs = append([]string{cwd}, searchDirs...)
	}
	cfg, err := config.Load(opts.ConfigPath, searchDirs...)
	if err != nil {
		return nil, err
	}
	if src := cfg.Source(); src != "" {
		logger.Info("Loaded config", "file", src)
	}
	if opts.Notes {
		cfg.Notes = true
	}
	if opts.History != "" {
		cfg.History = opts.History
	}
	if opts.Arch != "" {
		cfg.Arch = opts.Arch
	}
	// log_level also picks up BINPATCH_LOG_LEVEL through the config layer.
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	if opts.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	out := &outcome{Config: cfg}

	var validator build.Validator = build.NewLayout(target, cfg.Layout.Required, logger)
	if !validator.Validate() {
		return nil, fmt.Errorf("build structure invalid: %s", target)
	}

	out.Markers = build.DetectMarkers(filepath.Dir(target), cfg.Layout.Markers)
	for _, m := range out.Markers {
		if m.Present {
			logger.Info("Marker present", "name", m.Name)
		}
	}

	if opts.NoBinaryPatch {
		logger.Info("Binary patching skipped")
		return out, nil
	}

	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid pattern table: %w", err)
	}

	started := time.Now()
	o := engine.New(reg, engine.Options{DryRun: opts.DryRun, BackupSuffix: cfg.BackupSuffix}, logger)
	r, err := o.Run(target)
	if err != nil {
		return nil, err
	}
	out.Report = r

	if logger.GetLevel() <= log.DebugLevel {
		logger.Debug("Patch records", "dump", spew.Sdump(r.Records))
	}

	if im, err := imagex.Parse(r.Data); err != nil {
		logger.Warn("Could not describe image", "error", err)
	} else {
		out.Image = im
		logger.Debug("Image format", "format", im.Format, "arch", im.Arch, "sections", len(im.Sections))
	}

	if cfg.Notes && !r.DryRun {
		path, err := report.WriteNotes(r, out.reportOptions(), started)
		if err != nil {
			return nil, err
		}
		out.Notes = path
		logger.Info("Wrote patch notes", "path", path)
	}

	if cfg.History != "" {
		db, err := history.Open(cfg.History)
		if err != nil {
			return nil, err
		}
		defer history.Close(db)
		prev, err := history.Last(db, target)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			out.Previous = prev
			logPrevious(logger, prev, r)
		}
		run, err := history.Record(db, r, started)
		if err != nil {
			return nil, err
		}
		out.RunID = run.ID
		logger.Debug("Recorded run", "id", run.ID, "history", cfg.History)
	}

	return out, nil
}

// logPrevious compares this run's starting digest with what the last
// recorded run left behind.
func logPrevious(logger *log.Logger, prev *history.Run, r *engine.Report) {
	left := prev.FinalDigest
	if prev.DryRun {
		left = prev.OriginalDigest
	}
	if left != r.OriginalDigest.String() {
		logger.Warn("Target changed since last recorded run", "run", prev.ID, "recorded", left, "found", r.OriginalDigest)
		return
	}
	logger.Info("Previous run", "run", prev.ID, "status", prev.Status, "at", prev.StartedAt.Format(time.RFC3339))
}
