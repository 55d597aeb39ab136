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

// Package pipeline orchestrates documentation generation as a fixed sequence
// of stages over one shared State: fetch the repository, identify its major
// abstractions, analyze their relationships, order the chapters, write each
// chapter, and combine everything into the final document set.
//
// Stages that consume LLM output parse a single fenced yaml block and
// validate it strictly. A structural defect in the reply (missing field,
// out-of-range index, non-permutation order) is a *ValidationError and
// aborts the job; no partial document is ever published.
package pipeline

import (
	"log/slog"
	"time"

	"github.com/kraklabs/repodoc/pkg/crawler"
	"github.com/kraklabs/repodoc/pkg/llm"
)

// FileEntry is one crawled file. The slice position of an entry is the
// index the LLM and all derived structures refer to.
type FileEntry struct {
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content" yaml:"content"`
}

// Abstraction is one subsystem the model identified.
type Abstraction struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// FileIndices reference State.Files, deduplicated in first-seen order.
	FileIndices []int `json:"file_indices" yaml:"file_indices"`
}

// Relationship is a directed edge between two abstractions, by index.
type Relationship struct {
	From  int    `json:"from" yaml:"from"`
	To    int    `json:"to" yaml:"to"`
	Label string `json:"label" yaml:"label"`
}

// ChapterContent is one written chapter.
type ChapterContent struct {
	// Number is the 1-based position in the reading order.
	Number int `json:"number"`

	// AbstractionIndex references State.Abstractions.
	AbstractionIndex int `json:"abstraction_index"`

	Filename string `json:"filename"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// Event reports pipeline progress to an optional callback.
type Event struct {
	Stage          string
	Message        string
	Progress       int // 0-100 across the whole run
	CurrentChapter int
	TotalChapters  int
	ChapterName    string
}

// ProgressFunc receives progress events. Calls are fire-and-forget from the
// pipeline's perspective; the callback must not block for long.
type ProgressFunc func(Event)

// State is the single aggregate all stages read and write.
type State struct {
	// Repository identity.
	RepoURL     string
	Ref         string
	ProjectName string

	// Crawl inputs for FetchRepo.
	Token        string
	IncludeGlobs []string
	ExcludeGlobs []string
	MaxFileSize  int64

	Files      []FileEntry
	CrawlStats crawler.Stats

	// Derived by the analytical stages.
	Abstractions  []Abstraction
	Relationships []Relationship
	Summary       string

	// ChapterOrder is a permutation of abstraction indices.
	ChapterOrder []int
	Chapters     []ChapterContent

	// Output maps filename to markdown, index.md included.
	Output map[string]string

	GeneratedAt time.Time
}

// Config tunes the pipeline.
type Config struct {
	// MaxAbstractions caps how many subsystems the model may return
	// (minimum accepted is always 3).
	MaxAbstractions int

	// ContextTokens is the model context window budgeted for file content.
	ContextTokens int

	// ChapterContextTokens budgets the narrower per-chapter context.
	ChapterContextTokens int

	// MaxTokens is the per-call completion cap passed to the provider.
	MaxTokens int
}

// DefaultConfig returns the tuning used when a field is zero.
func DefaultConfig() Config {
	return Config{
		MaxAbstractions:      10,
		ContextTokens:        100_000,
		ChapterContextTokens: 32_000,
		MaxTokens:            8192,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAbstractions <= 0 {
		c.MaxAbstractions = d.MaxAbstractions
	}
	if c.ContextTokens <= 0 {
		c.ContextTokens = d.ContextTokens
	}
	if c.ChapterContextTokens <= 0 {
		c.ChapterContextTokens = d.ChapterContextTokens
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	return c
}

// Pipeline runs the stages. Construct with New.
type Pipeline struct {
	client   llm.Client
	crawler  *crawler.Crawler
	cfg      Config
	logger   *slog.Logger
	progress ProgressFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCrawler supplies the repository crawler used by FetchRepo. Runs that
// start from pre-fetched files do not need one.
func WithCrawler(c *crawler.Crawler) Option {
	return func(p *Pipeline) { p.crawler = c }
}

// WithConfig overrides the default tuning.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg.withDefaults() }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline around an LLM client.
func New(client llm.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		client: client,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) emit(ev Event) {
	if p.progress != nil {
		p.progress(ev)
	}
}
