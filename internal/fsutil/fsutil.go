// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// Package fsutil provides filesystem helpers for the opsigner store.
// Key material and wallet state are owner-only (0600 files, 0700 dirs),
// and writes are atomic so a crash never leaves a half-written file.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// StoreDirPerm is the permission mode for store directories.
const StoreDirPerm os.FileMode = 0700

// StoreFilePerm is the permission mode for store files.
const StoreFilePerm os.FileMode = 0600

// MkdirAll creates a directory and all parents with store permissions.
// Unlike os.MkdirAll, this explicitly sets permissions after creation to
// bypass umask restrictions.
func MkdirAll(path string) error {
	if err := os.MkdirAll(path, StoreDirPerm); err != nil {
		return err
	}
	return os.Chmod(path, StoreDirPerm)
}

// WriteFileAtomic writes data to path via a temporary file in the same
// directory followed by a rename. Either the old content or the new content
// is on disk at every instant; a crash mid-write leaves the target intact.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := tmp.Chmod(StoreFilePerm); err != nil {
		cleanup()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", tmpPath, err)
	}
	return nil
}
