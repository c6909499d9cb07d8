// Package integrity keeps the pristine copy of a patched image and provides
// the fingerprint and write helpers used around a patch run.
package integrity

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultBackupSuffix is appended to the target path to name its backup.
const DefaultBackupSuffix = ".backup"

// BackupStatus tells whether CreateBackup copied the target.
type BackupStatus int

const (
	BackupCreated BackupStatus = iota
	BackupExists
)

func (s BackupStatus) String() string {
	switch s {
	case BackupCreated:
		return "created"
	case BackupExists:
		return "exists"
	default:
		return "unknown"
	}
}

// Backup ties a target image to its sibling backup file.
type Backup struct {
	Target string
	Path   string
}

// BackupPath derives the backup location for target. An empty suffix falls
// back to DefaultBackupSuffix so the backup can never alias the target.
func BackupPath(target, suffix string) string {
	if suffix == "" {
		suffix = DefaultBackupSuffix
	}
	return target + suffix
}

// CreateBackup copies target to its backup path unless a backup already
// exists. An existing backup is never overwritten, so it keeps holding the
// bytes from before the first patch run.
//
// The copy is written and synced under a temporary name and then linked into
// place, so the backup path only ever holds a complete copy. Leftover
// temporaries from an interrupted run are ignored.
func CreateBackup(target, suffix string) (Backup, BackupStatus, error) {
	b := Backup{Target: target, Path: BackupPath(target, suffix)}

	if _, err := os.Lstat(b.Path); err == nil {
		return b, BackupExists, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return b, BackupExists, fmt.Errorf("stat backup: %w", err)
	}

	src, err := os.Open(target)
	if err != nil {
		return b, BackupCreated, fmt.Errorf("open target: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return b, BackupCreated, fmt.Errorf("stat target: %w", err)
	}

	dir, base := filepath.Split(b.Path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return b, BackupCreated, fmt.Errorf("create backup: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return b, BackupCreated, fmt.Errorf("copy backup: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return b, BackupCreated, fmt.Errorf("chmod backup: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return b, BackupCreated, fmt.Errorf("sync backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return b, BackupCreated, fmt.Errorf("close backup: %w", err)
	}

	// Keep the original timestamp on the copy; failure here is cosmetic.
	_ = os.Chtimes(tmpName, info.ModTime(), info.ModTime())

	if err := publish(tmpName, b.Path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return b, BackupExists, nil
		}
		return b, BackupCreated, fmt.Errorf("create backup: %w", err)
	}
	if err := syncDir(dir); err != nil {
		return b, BackupCreated, fmt.Errorf("sync backup dir: %w", err)
	}
	return b, BackupCreated, nil
}

// publish makes tmp visible at path without replacing an existing file.
// Filesystems without hard links fall back to a checked rename.
func publish(tmp, path string) error {
	err := os.Link(tmp, path)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}
	if _, serr := os.Lstat(path); serr == nil {
		return fs.ErrExist
	}
	return os.Rename(tmp, path)
}

// Restore copies the backup over its target.
func (b Backup) Restore() error {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	info, err := os.Stat(b.Path)
	if err != nil {
		return fmt.Errorf("stat backup: %w", err)
	}
	return WriteFileAtomic(b.Target, data, info.Mode().Perm())
}
