// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opsigner/opsigner/internal/fsutil"
)

const (
	tokenFile   = "api.token"
	tokenLength = 32 // bytes before hex encoding
)

// generateToken generates a cryptographically secure random token
func generateToken() (string, error) {
	bytes := make([]byte, tokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// readToken reads a token from a file.
// Returns empty string if file doesn't exist (not an error).
// Warns to stderr if file permissions are more permissive than 0600.
func readToken(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	if perm := info.Mode().Perm(); perm&0077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %s has mode %04o, should be 0600; run: chmod 600 %s\n", path, perm, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// loadAPIToken returns the API token from <dataDir>/api.token, generating
// and persisting a fresh one on first run.
func loadAPIToken(dataDir string) (string, error) {
	path := filepath.Join(dataDir, tokenFile)

	token, err := readToken(path)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}

	token, err = generateToken()
	if err != nil {
		return "", err
	}
	if err := fsutil.WriteFileAtomic(path, []byte(token+"\n")); err != nil {
		return "", fmt.Errorf("failed to write token file: %w", err)
	}

	fmt.Printf("✓ Generated new API token: %s\n", path)
	return token, nil
}
