package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"binpatch/internal/patch"
)

const sampleConfig = `
backup_suffix: .orig
arch: amd64
notes: true
include_defaults: false
layout:
  required:
    - Content/Paks
  markers:
    - Plugins
patterns:
  - id: nop-call
    signature: "E8 00 00 00 00"
    replacement: "90 90 90 90 90"
    description: Remove a null call
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigName+".yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BackupSuffix != ".orig" || cfg.Arch != "amd64" || !cfg.Notes {
		t.Errorf("unexpected scalars: %+v", cfg)
	}
	if diff := cmp.Diff(Layout{Required: []string{"Content/Paks"}, Markers: []string{"Plugins"}}, cfg.Layout); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	if cfg.Source() != path {
		t.Errorf("Source() = %q, want %q", cfg.Source(), path)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}
	entries := reg.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(entries))
	}
	want := patch.PatternSpec{
		ID:          "nop-call",
		Signature:   []byte{0xE8, 0, 0, 0, 0},
		Replacement: []byte{0x90, 0x90, 0x90, 0x90, 0x90},
		Description: "Remove a null call",
	}
	if diff := cmp.Diff(want, entries[0]); diff != "" {
		t.Errorf("pattern mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSearchDirs(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "backup_suffix: .bak\n")

	cfg, err := Load("", t.TempDir(), dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BackupSuffix != ".bak" {
		t.Errorf("BackupSuffix = %q", cfg.BackupSuffix)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BackupSuffix != ".backup" || !cfg.IncludeDefaults || cfg.Source() != "" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != len(patch.DefaultPatterns()) {
		t.Errorf("registry has %d patterns", reg.Len())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BINPATCH_BACKUP_SUFFIX", ".env")
	t.Setenv("BINPATCH_ARCH", "arm64")

	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BackupSuffix != ".env" || cfg.Arch != "arm64" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoadRejectsUnknownArch(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "arch: mips\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported arch")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRegistryRejectsBadPattern(t *testing.T) {
	cfg := &Config{Patterns: []PatternConfig{{ID: "bad", Signature: "84 C0", Replacement: "90"}}}
	_, err := cfg.Registry()
	var lm *patch.LengthMismatchError
	if !errors.As(err, &lm) {
		t.Fatalf("expected LengthMismatchError, got %v", err)
	}

	cfg = &Config{Patterns: []PatternConfig{{ID: "hex", Signature: "GG", Replacement: "90"}}}
	if _, err := cfg.Registry(); err == nil {
		t.Fatal("expected hex parse error")
	}
}
