// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repodoc/internal/errors"
	"github.com/kraklabs/repodoc/internal/output"
	"github.com/kraklabs/repodoc/internal/ui"
	"github.com/kraklabs/repodoc/pkg/cache"
)

// CacheEntry summarizes one cached generation for 'cache show'.
type CacheEntry struct {
	Key         string    `json:"key"`
	RepoURL     string    `json:"repo_url"`
	Ref         string    `json:"ref,omitempty"`
	Files       int       `json:"files"`
	Chapters    int       `json:"chapters"`
	GeneratedAt time.Time `json:"generated_at"`
}

// runCache executes the 'cache' CLI command with its show/clear subcommands.
//
// Examples:
//
//	repodoc cache show
//	repodoc cache show --json
//	repodoc cache clear
//	repodoc cache clear --repo acme/widget
func runCache(args []string, configPath string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: repodoc cache show|clear [options]\n")
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load repodoc configuration",
			err.Error(),
			"Run 'repodoc init' to create a fresh configuration",
			err,
		), globals.JSON)
	}

	dir := cfg.Cache.Dir
	if dir == "" {
		dir = DefaultCacheDir()
	}
	store := cache.NewFilesystemStore(dir)

	switch args[0] {
	case "show":
		runCacheShow(store, dir, globals)
	case "clear":
		runCacheClear(args[1:], store, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown cache subcommand: %s (expected show or clear)\n", args[0])
		os.Exit(1)
	}
}

func runCacheShow(store cache.Store, dir string, globals GlobalFlags) {
	ctx := context.Background()

	keys, err := store.Keys(ctx)
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot list the cache",
			err.Error(),
			"Check the cache directory is readable",
			err,
		), globals.JSON)
	}

	entries := make([]CacheEntry, 0, len(keys))
	for _, key := range keys {
		idx, err := store.Load(ctx, key)
		if err != nil {
			continue
		}
		entries = append(entries, CacheEntry{
			Key:         key,
			RepoURL:     idx.RepoURL,
			Ref:         idx.Ref,
			Files:       len(idx.FileHashes),
			Chapters:    len(idx.Chapters),
			GeneratedAt: idx.GeneratedAt,
		})
	}

	if globals.JSON {
		if err := output.JSON(entries); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Header("Generation Cache")
	fmt.Printf("%s %s\n\n", ui.Label("Directory:"), ui.DimText(dir))

	if len(entries) == 0 {
		ui.Info("Cache is empty")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s\n", ui.Label(e.RepoURL))
		fmt.Printf("  Files: %s  Chapters: %s  Generated: %s\n",
			ui.CountText(e.Files), ui.CountText(e.Chapters),
			e.GeneratedAt.Format(time.RFC3339))
	}
}

func runCacheClear(args []string, store cache.Store, globals GlobalFlags) {
	fs := flag.NewFlagSet("cache clear", flag.ExitOnError)
	repoURL := fs.String("repo", "", "Clear only this repository's entry")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()

	if *repoURL != "" {
		key := cache.NormalizeRepoURL(*repoURL)
		if err := store.Delete(ctx, key); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot clear the cache entry",
				err.Error(),
				"Check the cache directory is writable",
				err,
			), globals.JSON)
		}
		if !globals.JSON {
			ui.Successf("Cleared cache for %s", key)
		}
		return
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot list the cache",
			err.Error(),
			"Check the cache directory is readable",
			err,
		), globals.JSON)
	}
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot clear the cache",
				err.Error(),
				"Check the cache directory is writable",
				err,
			), globals.JSON)
		}
	}
	if !globals.JSON {
		ui.Successf("Cleared %d cache entries", len(keys))
	}
}
