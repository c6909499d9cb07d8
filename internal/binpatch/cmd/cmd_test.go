package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"binpatch/internal/engine"
	"binpatch/internal/report"
	"binpatch/internal/ui/colorize"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// makeTarget writes an image with one near-jz site at offset 1.
func makeTarget(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "game.exe")
	if err := os.WriteFile(path, []byte{0x00, 0x84, 0xC0, 0x0F, 0x84, 0x00}, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "binpatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunPatch(t *testing.T) {
	target := makeTarget(t)
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := runPatch(runOptions{Target: target, Notes: true, History: db}, quietLogger())
	if err != nil {
		t.Fatalf("runPatch failed: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x00, 0x84, 0xC0, 0x90, 0xE9, 0x00}, got); diff != "" {
		t.Errorf("target mismatch (-want +got):\n%s", diff)
	}
	if out.Report.Applied != 1 || !out.Report.Written() {
		t.Errorf("unexpected report: %+v", out.Report)
	}
	if out.Notes != report.NotesPath(target) {
		t.Errorf("notes = %q", out.Notes)
	}
	if _, err := os.Stat(out.Notes); err != nil {
		t.Errorf("notes not written: %v", err)
	}
	if out.RunID == 0 {
		t.Error("run not recorded")
	}

	var buf bytes.Buffer
	if err := runHistory(&buf, db, target, 0, false); err != nil {
		t.Fatalf("runHistory failed: %v", err)
	}
	if !strings.Contains(buf.String(), target) || !strings.Contains(buf.String(), "applied=1") {
		t.Errorf("history output:\n%s", buf.String())
	}
}

func TestRunPatchDryRun(t *testing.T) {
	target := makeTarget(t)
	before, _ := os.ReadFile(target)

	out, err := runPatch(runOptions{Target: target, DryRun: true, Notes: true}, quietLogger())
	if err != nil {
		t.Fatalf("runPatch failed: %v", err)
	}
	if out.Report.Candidates != 1 || out.Report.Applied != 0 {
		t.Errorf("unexpected counts: %+v", out.Report)
	}

	after, _ := os.ReadFile(target)
	if !bytes.Equal(before, after) {
		t.Error("dry run modified the target")
	}
	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dry run left files behind: %v", entries)
	}
}

func TestRunPatchInvalidLayout(t *testing.T) {
	target := makeTarget(t)
	writeConfig(t, filepath.Dir(target), "layout:\n  required:\n    - Launcher.exe\n")
	before, _ := os.ReadFile(target)

	_, err := runPatch(runOptions{Target: target}, quietLogger())
	if err == nil || !strings.Contains(err.Error(), "build structure invalid") {
		t.Fatalf("err = %v, want build structure error", err)
	}
	after, _ := os.ReadFile(target)
	if !bytes.Equal(before, after) {
		t.Error("target modified after failed validation")
	}
	if _, err := os.Stat(target + ".backup"); !os.IsNotExist(err) {
		t.Error("backup created after failed validation")
	}
}

func TestRunPatchNoBinaryPatch(t *testing.T) {
	target := makeTarget(t)
	dir := filepath.Dir(target)
	if err := os.Mkdir(filepath.Join(dir, "Plugins"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "layout:\n  markers: [Plugins, Mods]\n")

	out, err := runPatch(runOptions{Target: target, NoBinaryPatch: true}, quietLogger())
	if err != nil {
		t.Fatalf("runPatch failed: %v", err)
	}
	if out.Report != nil {
		t.Error("report produced with --no-binary-patch")
	}
	if len(out.Markers) != 2 || !out.Markers[0].Present || out.Markers[1].Present {
		t.Errorf("unexpected markers: %+v", out.Markers)
	}
	if _, err := os.Stat(target + ".backup"); !os.IsNotExist(err) {
		t.Error("backup created with --no-binary-patch")
	}
}

func TestRunPatchMissingTarget(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.exe")
	if _, err := runPatch(runOptions{Target: missing}, quietLogger()); err == nil {
		t.Fatal("expected an error for a missing target")
	}
}

func TestRunPatchConfigPatterns(t *testing.T) {
	target := makeTarget(t)
	cfg := writeConfig(t, t.TempDir(), `
include_defaults: false
patterns:
  - id: zero-pad
    signature: "00 84"
    replacement: "90 84"
`)

	out, err := runPatch(runOptions{Target: target, ConfigPath: cfg}, quietLogger())
	if err != nil {
		t.Fatalf("runPatch failed: %v", err)
	}
	if diff := cmp.Diff([]int{0}, out.Report.Offsets()); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestRunNoTUIJSON(t *testing.T) {
	target := makeTarget(t)

	var buf bytes.Buffer
	if err := runNoTUI(&buf, runOptions{Target: target, DryRun: true}, true); err != nil {
		t.Fatalf("runNoTUI failed: %v", err)
	}
	var doc report.Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if doc.Status != "dry run" || doc.Candidates != 1 || len(doc.Sites) != 1 || doc.Sites[0].Offset != 1 {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestRunNoTUISummary(t *testing.T) {
	target := makeTarget(t)

	var buf bytes.Buffer
	if err := runNoTUI(&buf, runOptions{Target: target}, false); err != nil {
		t.Fatalf("runNoTUI failed: %v", err)
	}
	if !strings.Contains(buf.String(), "1 patches applied") {
		t.Errorf("summary:\n%s", buf.String())
	}

	// A second run finds nothing and still succeeds.
	buf.Reset()
	if err := runNoTUI(&buf, runOptions{Target: target}, false); err != nil {
		t.Fatalf("second runNoTUI failed: %v", err)
	}
	if !strings.Contains(buf.String(), "0 patches applied") {
		t.Errorf("second summary:\n%s", buf.String())
	}
}

func TestRunScan(t *testing.T) {
	t.Setenv(colorize.NoColorEnv, "1")
	target := makeTarget(t)
	before, _ := os.ReadFile(target)

	var buf bytes.Buffer
	if err := runScan(&buf, target, "", "", false); err != nil {
		t.Fatalf("runScan failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"test-jz-near", "(1 sites)", "0x00000001", "jz-short-call", "not found", "1 candidate sites"} {
		if !strings.Contains(out, want) {
			t.Errorf("scan output missing %q:\n%s", want, out)
		}
	}

	after, _ := os.ReadFile(target)
	if !bytes.Equal(before, after) {
		t.Error("scan modified the target")
	}
	if _, err := os.Stat(target + ".backup"); !os.IsNotExist(err) {
		t.Error("scan created a backup")
	}
}

func TestRunHistoryMissingDB(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.db")
	if err := runHistory(io.Discard, missing, "", 0, false); err == nil {
		t.Fatal("expected an error for a missing ledger")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("ledger created by history listing")
	}
}

func TestConfigSchema(t *testing.T) {
	bts, err := configSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"backup_suffix", "patterns", "signature", "layout"} {
		if !bytes.Contains(bts, []byte(want)) {
			t.Errorf("schema missing %q", want)
		}
	}
}

func TestModelShowsReport(t *testing.T) {
	t.Setenv(colorize.NoColorEnv, "1")
	target := makeTarget(t)
	opts := runOptions{Target: target, DryRun: true}

	m := NewModel(opts, quietLogger())
	if !m.running {
		t.Fatal("model should start running")
	}

	out, err := runPatch(opts, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	next, _ := m.Update(runDoneMsg{outcome: out})
	m = next.(model)
	if m.running || m.err != nil {
		t.Fatalf("unexpected state: running=%v err=%v", m.running, m.err)
	}

	next, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(model)
	if m.width != 120 {
		t.Errorf("width = %d", m.width)
	}
	if view := m.View(); !strings.Contains(view, "binpatch") {
		t.Errorf("view missing title:\n%s", view)
	}
}

func TestModelShowsError(t *testing.T) {
	m := NewModel(runOptions{Target: "x"}, quietLogger())
	next, _ := m.Update(runDoneMsg{err: &engine.MissingTargetError{Path: "x"}})
	m = next.(model)
	if m.err == nil || m.running {
		t.Fatalf("unexpected state: running=%v err=%v", m.running, m.err)
	}
}

func TestModelWaitsForRunBeforeQuitting(t *testing.T) {
	m := NewModel(runOptions{Target: "x"}, quietLogger())

	m, cmd := m.requestQuit()
	if cmd != nil {
		t.Fatal("quit requested mid-run returned a command")
	}
	if !m.quitting || !strings.Contains(m.View(), "Quitting when the run finishes") {
		t.Errorf("quit not deferred: quitting=%v", m.quitting)
	}

	next, cmd := m.Update(runDoneMsg{err: &engine.MissingTargetError{Path: "x"}})
	m = next.(model)
	if m.running {
		t.Fatal("model still running")
	}
	if cmd == nil {
		t.Fatal("no quit after the run finished")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("command after run = %T, want tea.QuitMsg", cmd())
	}
}

func TestModelQuitsWhenIdle(t *testing.T) {
	m := NewModel(runOptions{Target: "x"}, quietLogger())
	next, _ := m.Update(runDoneMsg{err: &engine.MissingTargetError{Path: "x"}})
	m = next.(model)

	_, cmd := m.requestQuit()
	if cmd == nil {
		t.Fatal("idle model did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("command = %T, want tea.QuitMsg", cmd())
	}
}

func TestRunPatchComparesWithPreviousRun(t *testing.T) {
	target := makeTarget(t)
	db := filepath.Join(t.TempDir(), "runs.db")

	first, err := runPatch(runOptions{Target: target, History: db}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if first.Previous != nil {
		t.Errorf("first run has a previous run: %+v", first.Previous)
	}
	if first.Image == nil || first.Image.Format.String() != "raw" {
		t.Errorf("image = %+v, want raw", first.Image)
	}

	var logs bytes.Buffer
	second, err := runPatch(runOptions{Target: target, History: db}, log.New(&logs))
	if err != nil {
		t.Fatal(err)
	}
	if second.Previous == nil || second.Previous.ID != first.RunID {
		t.Fatalf("previous = %+v, want run %d", second.Previous, first.RunID)
	}
	if second.Previous.FinalDigest != first.Report.FinalDigest.String() {
		t.Errorf("previous digest = %s, want %s", second.Previous.FinalDigest, first.Report.FinalDigest)
	}
	if strings.Contains(logs.String(), "Target changed") {
		t.Errorf("unchanged target reported as changed:\n%s", logs.String())
	}

	// Someone else rewrites the file between runs.
	if err := os.WriteFile(target, []byte{0x00, 0x84, 0xC0, 0x0F, 0x84, 0x01}, 0o755); err != nil {
		t.Fatal(err)
	}
	logs.Reset()
	third, err := runPatch(runOptions{Target: target, History: db}, log.New(&logs))
	if err != nil {
		t.Fatal(err)
	}
	if third.Previous == nil || third.Previous.ID != second.RunID {
		t.Fatalf("previous = %+v, want run %d", third.Previous, second.RunID)
	}
	if !strings.Contains(logs.String(), "Target changed since last recorded run") {
		t.Errorf("missing change warning:\n%s", logs.String())
	}

	var buf bytes.Buffer
	if err := runNoTUI(&buf, runOptions{Target: target, History: db}, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Previous run #3") {
		t.Errorf("summary without previous run:\n%s", buf.String())
	}
}
