// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const maxAuditLogSize = 10 * 1024 * 1024 // 10 MB

const (
	AuditServerStart  AuditEventType = "SERVER_START"
	AuditServerStop   AuditEventType = "SERVER_STOP"
	AuditUnlock       AuditEventType = "UNLOCK"
	AuditUnlockFailed AuditEventType = "UNLOCK_FAILED"
	AuditLock         AuditEventType = "LOCK"
	AuditSignMessage  AuditEventType = "SIGN_MESSAGE"
	AuditSignOpHash   AuditEventType = "SIGN_OPHASH"
	AuditSignFailed   AuditEventType = "SIGN_FAILED"
	AuditAuthFailed   AuditEventType = "AUTH_FAILED"
	AuditAccountAdded AuditEventType = "ACCOUNT_ADDED"
	AuditStoreChanged AuditEventType = "STORE_CHANGED"
)

// AuditEntry represents a single audit log entry
type AuditEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Event      AuditEventType `json:"event"`
	Address    string         `json:"address,omitempty"`     // Signing key address
	Network    string         `json:"network,omitempty"`     // Network name for account events
	Account    string         `json:"account,omitempty"`     // Contract account address
	Digest     string         `json:"digest,omitempty"`      // Hash that was signed
	RemoteAddr string         `json:"remote_addr,omitempty"` // Client IP (for auth failures)
	Reason     string         `json:"reason,omitempty"`      // Rejection/failure reason
}

// AuditLogger handles append-only audit logging
type AuditLogger struct {
	file    *os.File
	mu      sync.Mutex
	path    string
	written uint64
}

// NewAuditLogger creates a new audit logger
// Log file is opened in append-only mode
func NewAuditLogger(path string) (*AuditLogger, error) {
	// Open file in append-only mode, create if not exists
	// Permissions: owner read/write only (0600)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	var written uint64
	if info, err := file.Stat(); err == nil {
		written = uint64(info.Size())
	}

	return &AuditLogger{file: file, path: path, written: written}, nil
}

// Log writes an audit entry
func (a *AuditLogger) Log(entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to marshal audit entry: %v\n", err)
		return
	}

	// Rotate if this write would exceed the size limit
	line := append(data, '\n')
	if a.written+uint64(len(line)) > maxAuditLogSize {
		if err := a.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to rotate audit log: %v\n", err)
			// Continue writing to current file
		}
	}

	if _, err := a.file.Write(line); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write audit entry: %v\n", err)
		return
	}
	a.written += uint64(len(line))

	// Sync to disk immediately (important for audit trails)
	_ = a.file.Sync()
}

// rotate archives the current log file and opens a fresh one.
// Must be called with a.mu held.
func (a *AuditLogger) rotate() error {
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	if err := os.Rename(a.path, a.path+".1"); err != nil {
		// Reopen the original path so logging can continue
		a.file, _ = os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		a.written = 0
		return fmt.Errorf("rename log: %w", err)
	}
	file, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open new log: %w", err)
	}
	a.file = file
	a.written = 0
	return nil
}

// Close closes the audit log file
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// Helper methods for common events

// LogServerStart logs the startup of the signing server.
func (a *AuditLogger) LogServerStart(address string) {
	a.Log(AuditEntry{Event: AuditServerStart, Address: address})
}

// LogServerStop logs the shutdown of the signing server.
func (a *AuditLogger) LogServerStop() {
	a.Log(AuditEntry{Event: AuditServerStop})
}

// LogUnlock logs a successful unlock.
func (a *AuditLogger) LogUnlock(address string) {
	a.Log(AuditEntry{Event: AuditUnlock, Address: address})
}

// LogUnlockFailed logs a failed unlock attempt.
func (a *AuditLogger) LogUnlockFailed(remoteAddr, reason string) {
	a.Log(AuditEntry{Event: AuditUnlockFailed, RemoteAddr: remoteAddr, Reason: reason})
}

// LogLock logs a lock, with the reason it happened (request, timeout, watcher).
func (a *AuditLogger) LogLock(address, reason string) {
	a.Log(AuditEntry{Event: AuditLock, Address: address, Reason: reason})
}

// LogSignMessage logs a message signature.
func (a *AuditLogger) LogSignMessage(address, digest string) {
	a.Log(AuditEntry{Event: AuditSignMessage, Address: address, Digest: digest})
}

// LogSignOpHash logs an operation hash signature.
func (a *AuditLogger) LogSignOpHash(address, digest string) {
	a.Log(AuditEntry{Event: AuditSignOpHash, Address: address, Digest: digest})
}

// LogSignFailed logs a signing attempt that failed.
func (a *AuditLogger) LogSignFailed(address, reason string) {
	a.Log(AuditEntry{Event: AuditSignFailed, Address: address, Reason: reason})
}

// LogAuthFailed logs an authentication failure from a remote address.
func (a *AuditLogger) LogAuthFailed(remoteAddr, reason string) {
	a.Log(AuditEntry{Event: AuditAuthFailed, RemoteAddr: remoteAddr, Reason: reason})
}

// LogAccountAdded logs a new contract account registration.
func (a *AuditLogger) LogAccountAdded(network, account string) {
	a.Log(AuditEntry{Event: AuditAccountAdded, Network: network, Account: account})
}

// LogStoreChanged logs an external keystore file change.
func (a *AuditLogger) LogStoreChanged(reason string) {
	a.Log(AuditEntry{Event: AuditStoreChanged, Reason: reason})
}
