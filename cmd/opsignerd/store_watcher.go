// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// startStoreWatcher watches the keystore blob for external changes. An
// unlocked signer holds a decrypted copy of the key in memory; if some
// other process replaces or removes the blob, that copy no longer matches
// what is on disk, so the signer locks itself.
//
// The parent directory is watched rather than the file: atomic writes
// replace the file by rename, which would silently detach a file-level
// watch.
func startStoreWatcher(server *Server, keystorePath string, ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(keystorePath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch keystore directory: %w", err)
	}

	fmt.Println("✓ File watcher enabled - signer locks if the keystore changes on disk")

	go func() {
		defer func() { _ = watcher.Close() }()

		// Debounce timer to avoid reacting to each step of an atomic write
		var debounceTimer *time.Timer
		const debounceDelay = 500 * time.Millisecond

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != keystorePath {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if !server.signer.IsUnlocked() {
						return
					}
					fmt.Println("⚠️  Keystore changed on disk - locking signer")
					if server.auditLog != nil {
						server.auditLog.LogStoreChanged(event.Op.String())
					}
					server.lockSigner("store_changed")
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Printf("⚠️  File watcher error: %v\n", err)
			}
		}
	}()

	return nil
}
