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
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"log/slog"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repodoc/internal/errors"
	"github.com/kraklabs/repodoc/internal/output"
	"github.com/kraklabs/repodoc/internal/ui"
	"github.com/kraklabs/repodoc/pkg/cost"
	"github.com/kraklabs/repodoc/pkg/crawler"
)

// EstimateResult is the machine-readable summary for --json mode.
type EstimateResult struct {
	Source    string          `json:"source"`
	Files     int             `json:"files"`
	Chapters  int             `json:"chapters"`
	Estimates []cost.Estimate `json:"estimates"`
}

// runEstimate executes the 'estimate' CLI command.
//
// It collects the repository files (remote crawl or local directory walk,
// no LLM involved), projects token usage for every pipeline phase, and
// prints a per-model cost comparison sorted cheapest first.
//
// Flags:
//   - --repo: Repository URL to crawl
//   - --path: Local directory to scan instead of crawling
//   - --chapters: Expected number of chapters (default 8)
//   - --token: GitHub token for private repositories
//
// Examples:
//
//	repodoc estimate --repo acme/widget
//	repodoc estimate --path . --chapters 6
//	repodoc estimate --repo acme/widget --json
func runEstimate(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	var (
		repoURL  = fs.String("repo", "", "Repository URL (https://github.com/owner/repo or owner/repo)")
		path     = fs.String("path", "", "Local directory to scan instead of crawling")
		chapters = fs.Int("chapters", 8, "Expected number of chapters")
		token    = fs.String("token", "", "GitHub token (default: GITHUB_TOKEN)")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repodoc estimate [options]

Estimates token usage and LLM cost for generating documentation, without
making any LLM calls. Costs are shown per model with a +/-20%% band.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
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

	source := *repoURL
	if source == "" {
		source = cfg.Repo.URL
	}
	if *path != "" {
		source = *path
	}
	if source == "" {
		errors.FatalError(errors.NewInputError(
			"No repository specified",
			"Neither --repo, --path, nor repo.url in .repodoc/project.yaml is set",
			"Pass --repo owner/repo or --path .",
		), globals.JSON)
	}

	files, err := collectFiles(cfg, *path, source, *token)
	if err != nil {
		errors.FatalError(classifyGenerateError(err), globals.JSON)
	}

	estimates := cost.CompareCosts(files, *chapters, cost.DefaultPricing())

	if globals.JSON {
		result := EstimateResult{
			Source:    source,
			Files:     len(files),
			Chapters:  *chapters,
			Estimates: estimates,
		}
		if err := output.JSON(result); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	printEstimates(source, len(files), *chapters, estimates)
}

// collectFiles gathers file contents from a local directory or a crawl.
func collectFiles(cfg *Config, localPath, source, token string) (map[string]string, error) {
	if localPath != "" {
		return scanLocal(localPath, cfg.Repo.Exclude, cfg.Repo.MaxFileSize)
	}

	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := crawler.New(slog.Default()).Crawl(ctx, crawler.Request{
		RepoURL:      source,
		Ref:          cfg.Repo.Ref,
		Token:        token,
		IncludeGlobs: cfg.Repo.Include,
		ExcludeGlobs: cfg.Repo.Exclude,
		MaxFileSize:  cfg.Repo.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// scanLocal walks a directory applying the same exclude globs and size
// ceiling a crawl would. Hidden directories are skipped.
func scanLocal(root string, excludes []string, maxFileSize int64) (map[string]string, error) {
	files := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if crawler.MatchAny(rel, excludes) {
			return nil
		}
		if maxFileSize > 0 {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.Size() > maxFileSize {
				return nil
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[rel] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot scan %s: %w", root, err)
	}
	return files, nil
}

// printEstimates renders the human-readable comparison table.
func printEstimates(source string, fileCount, chapters int, estimates []cost.Estimate) {
	ui.Header("Cost Estimate")
	fmt.Printf("%s %s\n", ui.Label("Source:"), source)
	fmt.Printf("%s %s files, %s chapters\n\n", ui.Label("Scope:"),
		ui.CountText(fileCount), ui.CountText(chapters))

	if len(estimates) == 0 {
		ui.Warning("No pricing entries configured")
		return
	}

	// Token projection is model-independent; show it once.
	b := estimates[0].Tokens
	fmt.Printf("%s %d input / %d output (%d total)\n\n", ui.Label("Tokens:"),
		b.InputTokens, b.OutputTokens, b.TotalTokens)

	ui.SubHeader("Models (cheapest first):")
	for _, e := range estimates {
		name := fmt.Sprintf("%s/%s", e.Pricing.Provider, e.Pricing.Model)
		if e.Cost.Estimated == 0 {
			fmt.Printf("  %-38s %s\n", name, "free (local)")
			continue
		}
		fmt.Printf("  %-38s $%.4f  %s\n", name, e.Cost.Estimated,
			ui.DimText(fmt.Sprintf("($%.4f - $%.4f)", e.Cost.Low, e.Cost.High)))
	}
}
