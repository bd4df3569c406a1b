// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package main

import (
	"log/slog"
	"os"
)

var logger *slog.Logger

// initLogger initializes the global logger with appropriate log level
// Set OPSIGNER_DEBUG=1 environment variable to enable debug logging
func initLogger() {
	level := slog.LevelInfo // Default: only show Info, Warn, Error

	if os.Getenv("OPSIGNER_DEBUG") != "" {
		level = slog.LevelDebug
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
