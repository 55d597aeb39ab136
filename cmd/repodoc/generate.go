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
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repodoc/internal/errors"
	"github.com/kraklabs/repodoc/internal/output"
	"github.com/kraklabs/repodoc/internal/ui"
	"github.com/kraklabs/repodoc/pkg/cache"
	"github.com/kraklabs/repodoc/pkg/crawler"
	"github.com/kraklabs/repodoc/pkg/llm"
	"github.com/kraklabs/repodoc/pkg/pipeline"
)

// repoLocks serializes concurrent generations of the same repository within
// this process. Two jobs for the same normalized repo key would race on the
// cache entry; the second waits for the first and then usually reuses it.
var repoLocks = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

func lockRepo(key string) func() {
	repoLocks.mu.Lock()
	l, ok := repoLocks.locks[key]
	if !ok {
		l = &sync.Mutex{}
		repoLocks.locks[key] = l
	}
	repoLocks.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// generateOptions carries the merged config and flag values for one run.
type generateOptions struct {
	RepoURL     string
	Ref         string
	Token       string
	OutDir      string
	Full        bool
	NoCache     bool
	Include     []string
	Exclude     []string
	MaxFileSize int64
	Pipeline    pipeline.Config
}

// GenerateResult is the machine-readable summary for --json mode.
type GenerateResult struct {
	RepoURL    string        `json:"repo_url"`
	Ref        string        `json:"ref,omitempty"`
	Action     string        `json:"action"`
	Chapters   int           `json:"chapters"`
	Files      []string      `json:"files"`
	OutDir     string        `json:"out_dir"`
	CrawlStats crawler.Stats `json:"crawl_stats"`
	Duration   string        `json:"duration"`
}

// runGenerate executes the 'generate' CLI command.
//
// It crawls the repository, consults the cache to decide between a full run,
// a partial chapter rewrite, or pure reuse, runs the required pipeline
// stages, and writes the markdown output to the output directory.
//
// Flags:
//   - --repo: Repository URL (overrides config)
//   - --ref: Branch, tag, or commit SHA
//   - --token: GitHub token (default: GITHUB_TOKEN env)
//   - --out: Output directory (default: config, then ./docs)
//   - --full: Ignore the cache and regenerate everything
//   - --no-cache: Neither read nor write the cache
//   - --chapters: Maximum number of abstractions/chapters
//   - --provider, --model: LLM provider overrides
//   - --metrics-addr: Serve Prometheus metrics on this address while running
//
// Examples:
//
//	repodoc generate --repo https://github.com/acme/widget
//	repodoc generate --repo acme/widget --out ./docs --full
//	repodoc generate --provider openai --model gpt-4o-mini
func runGenerate(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	var (
		repoURL     = fs.String("repo", "", "Repository URL (https://github.com/owner/repo or owner/repo)")
		ref         = fs.String("ref", "", "Branch, tag, or commit SHA")
		token       = fs.String("token", "", "GitHub token (default: GITHUB_TOKEN)")
		outDir      = fs.String("out", "", "Output directory")
		full        = fs.Bool("full", false, "Ignore the cache and regenerate everything")
		noCache     = fs.Bool("no-cache", false, "Neither read nor write the cache")
		chapters    = fs.Int("chapters", 0, "Maximum number of chapters")
		provider    = fs.String("provider", "", "LLM provider (ollama, openai, anthropic)")
		model       = fs.String("model", "", "LLM model name")
		metricsAddr = fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repodoc generate [options]

Generates tutorial documentation for a repository. Results are cached; a
second run against an unchanged repository rewrites the output without any
LLM calls, and a run with a few changed files rewrites only the affected
chapters.

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

	opts := mergeGenerateOptions(cfg, *repoURL, *ref, *token, *outDir, *chapters)
	opts.Full = *full
	opts.NoCache = *noCache || cfg.Cache.Disabled
	if opts.RepoURL == "" {
		errors.FatalError(errors.NewInputError(
			"No repository specified",
			"Neither --repo nor repo.url in .repodoc/project.yaml is set",
			"Pass --repo owner/repo or run 'repodoc init'",
		), globals.JSON)
	}

	if *provider != "" {
		cfg.LLM.Provider = *provider
	}
	if *model != "" {
		cfg.LLM.Model = *model
	}

	client, err := llm.New(llm.Options{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    apiKeyFromEnv(cfg.LLM.Provider),
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot create LLM client",
			err.Error(),
			"Check llm.provider in .repodoc/project.yaml (ollama, openai, anthropic)",
			err,
		), globals.JSON)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	var store cache.Store
	if !opts.NoCache {
		dir := cfg.Cache.Dir
		if dir == "" {
			dir = DefaultCacheDir()
		}
		store = cache.NewFilesystemStore(dir)
	}

	progressCfg := NewProgressConfig(globals)
	start := time.Now()

	spinner := NewSpinner(progressCfg, "Crawling "+opts.RepoURL)
	crawl, err := crawler.New(slog.Default()).Crawl(ctx, crawler.Request{
		RepoURL:      opts.RepoURL,
		Ref:          opts.Ref,
		Token:        opts.Token,
		IncludeGlobs: opts.Include,
		ExcludeGlobs: opts.Exclude,
		MaxFileSize:  opts.MaxFileSize,
	})
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		errors.FatalError(classifyGenerateError(err), globals.JSON)
	}

	if !globals.Quiet && !globals.JSON {
		ui.Infof("Crawled %d files (%d excluded, %d skipped)",
			crawl.Stats.DownloadedCount, crawl.Stats.ExcludedCount, crawl.Stats.SkippedCount)
	}

	state, plan, err := generateDocs(ctx, client, store, crawl, opts, pipelineProgress(progressCfg))
	if err != nil {
		errors.FatalError(classifyGenerateError(err), globals.JSON)
	}

	written, err := writeOutput(opts.OutDir, state.Output)
	if err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot write to the output directory",
			err.Error(),
			"Choose a writable directory with --out",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		result := GenerateResult{
			RepoURL:    opts.RepoURL,
			Ref:        state.Ref,
			Action:     plan.Action.String(),
			Chapters:   len(state.Chapters),
			Files:      written,
			OutDir:     opts.OutDir,
			CrawlStats: crawl.Stats,
			Duration:   time.Since(start).Round(time.Millisecond).String(),
		}
		if err := output.JSON(result); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	switch plan.Action {
	case cache.ReuseCached:
		ui.Successf("Repository unchanged, wrote %d cached files to %s", len(written), opts.OutDir)
	case cache.PartialRun:
		ui.Successf("Rewrote %d of %d chapters, wrote output to %s",
			len(plan.ChapterPositions), len(state.Chapters), opts.OutDir)
	default:
		ui.Successf("Wrote %d chapters to %s", len(state.Chapters), opts.OutDir)
	}
	fmt.Printf("%s %s\n", ui.Label("Elapsed:"), time.Since(start).Round(time.Second))
}

// mergeGenerateOptions resolves flag values against the config file.
// Flags win; the GITHUB_TOKEN env var backs the token.
func mergeGenerateOptions(cfg *Config, repoURL, ref, token, outDir string, chapters int) generateOptions {
	opts := generateOptions{
		RepoURL:     cfg.Repo.URL,
		Ref:         cfg.Repo.Ref,
		Token:       os.Getenv("GITHUB_TOKEN"),
		OutDir:      cfg.Output.Dir,
		Include:     cfg.Repo.Include,
		Exclude:     cfg.Repo.Exclude,
		MaxFileSize: cfg.Repo.MaxFileSize,
		Pipeline: pipeline.Config{
			MaxAbstractions:      cfg.Pipeline.MaxAbstractions,
			ContextTokens:        cfg.Pipeline.ContextTokens,
			ChapterContextTokens: cfg.Pipeline.ChapterContextTokens,
			MaxTokens:            cfg.LLM.MaxTokens,
		},
	}
	if repoURL != "" {
		opts.RepoURL = repoURL
	}
	if ref != "" {
		opts.Ref = ref
	}
	if token != "" {
		opts.Token = token
	}
	if outDir != "" {
		opts.OutDir = outDir
	}
	if opts.OutDir == "" {
		opts.OutDir = "./docs"
	}
	if chapters > 0 {
		opts.Pipeline.MaxAbstractions = chapters
	}
	return opts
}

// generateDocs plans against the cache and runs whichever part of the
// pipeline the plan requires.
//
// The crawl is already done; state.Files is populated from it so the
// pipeline never fetches. A nil store disables caching and always produces
// a full run.
func generateDocs(ctx context.Context, client llm.Client, store cache.Store, crawl *crawler.Result, opts generateOptions, progress pipeline.ProgressFunc) (*pipeline.State, cache.Plan, error) {
	key := cache.NormalizeRepoURL(opts.RepoURL)
	unlock := lockRepo(key)
	defer unlock()

	var prior *cache.Index
	if store != nil && !opts.Full {
		idx, err := store.Load(ctx, key)
		switch {
		case err == nil:
			prior = idx
		case stderrors.Is(err, cache.ErrNotFound):
			// First run for this repository.
		default:
			slog.Warn("cache.load.failed", "key", key, "error", err)
		}
	}

	planner := cache.Planner{Logger: slog.Default()}
	plan := planner.Plan(prior, crawl.Files)
	if opts.Full {
		plan = cache.Plan{Action: cache.FullRun, RerunAnalysis: true}
	}

	state := &pipeline.State{
		RepoURL: opts.RepoURL,
		Ref:     crawl.Ref,
		Files:   fileEntries(crawl.Files),
	}
	state.CrawlStats = crawl.Stats

	p := pipeline.New(client,
		pipeline.WithConfig(opts.Pipeline),
		pipeline.WithProgress(progress),
		pipeline.WithLogger(slog.Default()),
	)

	switch plan.Action {
	case cache.ReuseCached:
		prior.Restore(state)
		return state, plan, nil

	case cache.PartialRun:
		prior.Restore(state)
		if err := p.RewriteChapters(ctx, state, plan.ChapterPositions); err != nil {
			return nil, plan, err
		}
		if err := p.CombineTutorial(ctx, state); err != nil {
			return nil, plan, err
		}

	default:
		if err := p.Run(ctx, state); err != nil {
			return nil, plan, err
		}
	}

	if store != nil {
		if err := store.Save(ctx, key, cache.FromState(state)); err != nil {
			slog.Warn("cache.save.failed", "key", key, "error", err)
		}
	}
	return state, plan, nil
}

// fileEntries converts a crawl result to the pipeline's ordered file list.
// Path-sorted order keeps file indices stable across runs of the same tree.
func fileEntries(files map[string]string) []pipeline.FileEntry {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([]pipeline.FileEntry, len(paths))
	for i, p := range paths {
		entries[i] = pipeline.FileEntry{Path: p, Content: files[p]}
	}
	return entries
}

// writeOutput writes the rendered markdown files and returns the filenames
// in deterministic order.
func writeOutput(dir string, files map[string]string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(files[name]), 0o644); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// classifyGenerateError maps pipeline and crawler failures to user errors
// with the matching exit code.
func classifyGenerateError(err error) error {
	var ve *pipeline.ValidationError
	switch {
	case stderrors.As(err, &ve):
		return errors.NewValidationError(
			"The model returned structurally invalid output",
			ve.Error(),
			"Re-run the generation; a different completion usually validates",
			err,
		)
	case stderrors.Is(err, crawler.ErrNotFound):
		return errors.NewNotFoundError(
			"Repository not found",
			err.Error(),
			"Check the URL, or pass a token with --token for private repos",
		)
	case stderrors.Is(err, crawler.ErrAuth):
		return errors.NewNetworkError(
			"GitHub rejected the request",
			err.Error(),
			"Check the token passed via --token or GITHUB_TOKEN",
			err,
		)
	case stderrors.Is(err, crawler.ErrRateLimited):
		return errors.NewNetworkError(
			"GitHub API rate limit exhausted",
			err.Error(),
			"Wait for the limit to reset, or pass a token for a higher quota",
			err,
		)
	case stderrors.Is(err, context.Canceled):
		return errors.NewInputError(
			"Generation cancelled",
			"The run was interrupted before it completed",
			"Re-run the command; completed stages are cached",
		)
	default:
		return errors.NewInternalError(
			"Generation failed",
			err.Error(),
			"Re-run with -vv for debug logs; report if it persists",
			err,
		)
	}
}

// serveMetrics exposes the Prometheus registry for the duration of the run.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics.server.failed", "addr", addr, "error", err)
	}
}

// apiKeyFromEnv resolves the provider's conventional API key variable.
func apiKeyFromEnv(provider string) string {
	switch provider {
	case "openai", "openai-compatible":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}
