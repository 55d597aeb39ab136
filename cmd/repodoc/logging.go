// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"

	"log/slog"
)

// initLogging installs the process-wide slog handler.
//
// Logs go to stderr so they never mix with --json output on stdout.
// Default level is warn; -v raises it to info and -vv to debug.
func initLogging(globals GlobalFlags) {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose == 1:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
