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

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/repodoc/pkg/contextbuild"
	"github.com/kraklabs/repodoc/pkg/crawler"
	"github.com/kraklabs/repodoc/pkg/llm"
)

// Stage names used in logs, metrics, and validation errors.
const (
	StageFetch    = "fetch_repo"
	StageIdentify = "identify_abstractions"
	StageAnalyze  = "analyze_relationships"
	StageOrder    = "order_chapters"
	StageWrite    = "write_chapters"
	StageCombine  = "combine_tutorial"
)

// Run executes all stages in order. When s.Files is already populated (a
// pre-fetched or cached file set) the fetch stage is skipped.
func (p *Pipeline) Run(ctx context.Context, s *State) error {
	if len(s.Files) == 0 {
		if err := p.FetchRepo(ctx, s); err != nil {
			return err
		}
	}
	if s.ProjectName == "" {
		s.ProjectName = projectNameFromURL(s.RepoURL)
	}
	for _, stage := range []func(context.Context, *State) error{
		p.IdentifyAbstractions,
		p.AnalyzeRelationships,
		p.OrderChapters,
		p.WriteChapters,
		p.CombineTutorial,
	} {
		if err := stage(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// FetchRepo crawls the repository into s.Files. An empty result is fatal:
// there is nothing to document.
func (p *Pipeline) FetchRepo(ctx context.Context, s *State) error {
	if p.crawler == nil {
		return fmt.Errorf("stage %s: no crawler configured", StageFetch)
	}

	p.emit(Event{Stage: StageFetch, Message: "fetching repository", Progress: 0})
	start := time.Now()

	result, err := p.crawler.Crawl(ctx, crawler.Request{
		RepoURL:      s.RepoURL,
		Ref:          s.Ref,
		Token:        s.Token,
		IncludeGlobs: s.IncludeGlobs,
		ExcludeGlobs: s.ExcludeGlobs,
		MaxFileSize:  s.MaxFileSize,
	})
	if err != nil {
		return fmt.Errorf("stage %s: %w", StageFetch, err)
	}
	if len(result.Files) == 0 {
		return fmt.Errorf("stage %s: no files matched in %s", StageFetch, s.RepoURL)
	}

	s.Ref = result.Ref
	s.CrawlStats = result.Stats
	s.Files = s.Files[:0]
	for _, path := range result.SortedPaths() {
		s.Files = append(s.Files, FileEntry{Path: path, Content: result.Files[path]})
	}
	if s.ProjectName == "" {
		s.ProjectName = projectNameFromURL(s.RepoURL)
	}

	pipelineMetrics.observeStage(StageFetch, time.Since(start))
	p.logger.Info("pipeline.stage.fetch.complete",
		"files", len(s.Files), "ref", s.Ref, "duration", time.Since(start))
	return nil
}

// IdentifyAbstractions asks the model for the repository's core
// abstractions over a signature-mode context of the whole file set.
func (p *Pipeline) IdentifyAbstractions(ctx context.Context, s *State) error {
	p.emit(Event{Stage: StageIdentify, Message: "identifying abstractions", Progress: 10})
	start := time.Now()

	cb := contextbuild.Build(contextFiles(s.Files, nil), contextbuild.ModeSignature, p.cfg.ContextTokens)
	prompt := identifyPrompt(s.ProjectName, cb.Text, len(s.Files), p.cfg.MaxAbstractions)

	text, err := p.complete(ctx, StageIdentify, prompt)
	if err != nil {
		return err
	}
	abstractions, err := parseAbstractions(text, len(s.Files), p.cfg.MaxAbstractions)
	if err != nil {
		pipelineMetrics.validationFailure(StageIdentify)
		return err
	}

	s.Abstractions = abstractions
	pipelineMetrics.observeStage(StageIdentify, time.Since(start))
	p.logger.Info("pipeline.stage.identify.complete",
		"abstractions", len(abstractions),
		"context_files", len(cb.IncludedFileIndices),
		"duration", time.Since(start))
	return nil
}

// AnalyzeRelationships asks the model for a project summary and the
// directed edges between abstractions, over a full-mode context restricted
// to files any abstraction references.
func (p *Pipeline) AnalyzeRelationships(ctx context.Context, s *State) error {
	p.emit(Event{Stage: StageAnalyze, Message: "analyzing relationships", Progress: 25})
	start := time.Now()

	referenced := map[int]bool{}
	for _, a := range s.Abstractions {
		for _, fi := range a.FileIndices {
			referenced[fi] = true
		}
	}
	cb := contextbuild.Build(contextFiles(s.Files, referenced), contextbuild.ModeFull, p.cfg.ContextTokens)
	prompt := analyzePrompt(s.ProjectName, cb.Text, s.Abstractions)

	text, err := p.complete(ctx, StageAnalyze, prompt)
	if err != nil {
		return err
	}
	summary, relationships, err := parseAnalysis(text, len(s.Abstractions))
	if err != nil {
		pipelineMetrics.validationFailure(StageAnalyze)
		return err
	}

	// Uncovered abstractions weaken the diagram but do not invalidate the
	// analysis, so this is a warning rather than a failure.
	covered := map[int]bool{}
	for _, r := range relationships {
		covered[r.From] = true
		covered[r.To] = true
	}
	for i, a := range s.Abstractions {
		if !covered[i] {
			p.logger.Warn("pipeline.stage.analyze.uncovered_abstraction", "index", i, "name", a.Name)
		}
	}

	s.Summary = summary
	s.Relationships = relationships
	pipelineMetrics.observeStage(StageAnalyze, time.Since(start))
	p.logger.Info("pipeline.stage.analyze.complete",
		"relationships", len(relationships), "duration", time.Since(start))
	return nil
}

// OrderChapters asks the model for the pedagogical reading order and
// verifies it is an exact permutation of the abstraction indices.
func (p *Pipeline) OrderChapters(ctx context.Context, s *State) error {
	p.emit(Event{Stage: StageOrder, Message: "ordering chapters", Progress: 35})
	start := time.Now()

	prompt := orderPrompt(s.ProjectName, s.Summary, s.Abstractions, s.Relationships)
	text, err := p.complete(ctx, StageOrder, prompt)
	if err != nil {
		return err
	}
	order, err := parseOrder(text, len(s.Abstractions))
	if err != nil {
		pipelineMetrics.validationFailure(StageOrder)
		return err
	}

	s.ChapterOrder = order
	pipelineMetrics.observeStage(StageOrder, time.Since(start))
	p.logger.Info("pipeline.stage.order.complete", "order", order, "duration", time.Since(start))
	return nil
}

// WriteChapters writes every chapter sequentially in reading order. Each
// prompt carries the full table of contents, a cumulative digest of the
// chapters already written, and neighbor links, so chapters depend on their
// predecessors and cannot run out of order. A single chapter failure aborts
// the batch.
func (p *Pipeline) WriteChapters(ctx context.Context, s *State) error {
	start := time.Now()
	total := len(s.ChapterOrder)
	toc := buildTOC(s.Abstractions, s.ChapterOrder)

	var digest digestAccumulator
	s.Chapters = s.Chapters[:0]
	for pos, ai := range s.ChapterOrder {
		ch, err := p.writeChapter(ctx, s, pos, toc, digest.String())
		if err != nil {
			return fmt.Errorf("chapter %d (%s): %w", pos+1, s.Abstractions[ai].Name, err)
		}
		s.Chapters = append(s.Chapters, ch)
		digest.add(ch)

		p.emit(Event{
			Stage:          StageWrite,
			Message:        fmt.Sprintf("wrote chapter %d/%d", pos+1, total),
			Progress:       40 + 55*(pos+1)/total,
			CurrentChapter: pos + 1,
			TotalChapters:  total,
			ChapterName:    ch.Title,
		})
	}

	pipelineMetrics.observeStage(StageWrite, time.Since(start))
	p.logger.Info("pipeline.stage.write.complete", "chapters", total, "duration", time.Since(start))
	return nil
}

// writeChapter generates the chapter at position pos of the reading order.
func (p *Pipeline) writeChapter(ctx context.Context, s *State, pos int, toc, priorDigest string) (ChapterContent, error) {
	ai := s.ChapterOrder[pos]
	abstraction := s.Abstractions[ai]
	number := pos + 1
	ch := ChapterContent{
		Number:           number,
		AbstractionIndex: ai,
		Title:            abstraction.Name,
		Filename:         ChapterFilename(number, abstraction.Name),
	}

	cb := contextbuild.Build(chapterFiles(s.Files, abstraction.FileIndices), contextbuild.ModeFull, p.cfg.ChapterContextTokens)

	var prevLink, nextLink string
	if pos > 0 {
		prev := s.ChapterOrder[pos-1]
		prevLink = ChapterFilename(pos, s.Abstractions[prev].Name)
	}
	if pos+1 < len(s.ChapterOrder) {
		next := s.ChapterOrder[pos+1]
		nextLink = ChapterFilename(pos+2, s.Abstractions[next].Name)
	}

	prompt := chapterPrompt(s.ProjectName, ch, abstraction, cb.Text, toc, priorDigest, prevLink, nextLink, len(s.ChapterOrder))
	text, err := p.complete(ctx, StageWrite, prompt)
	if err != nil {
		return ChapterContent{}, err
	}

	ch.Body = ensureHeading(text, number, abstraction.Name)
	return ch, nil
}

// RewriteChapters regenerates the chapters at the given reading-order
// positions, keeping every other chapter from s. Used for incremental runs
// where only some source files changed. The digest each rewritten chapter
// sees is built from the current bodies of its predecessors.
func (p *Pipeline) RewriteChapters(ctx context.Context, s *State, positions []int) error {
	start := time.Now()
	if s.ProjectName == "" {
		s.ProjectName = projectNameFromURL(s.RepoURL)
	}
	targets := map[int]bool{}
	for _, pos := range positions {
		if pos < 0 || pos >= len(s.ChapterOrder) {
			return fmt.Errorf("rewrite position %d out of range", pos)
		}
		targets[pos] = true
	}
	if len(s.Chapters) != len(s.ChapterOrder) {
		return fmt.Errorf("cannot rewrite: have %d chapters for %d ordered abstractions", len(s.Chapters), len(s.ChapterOrder))
	}

	toc := buildTOC(s.Abstractions, s.ChapterOrder)
	var digest digestAccumulator
	done := 0
	for pos := range s.ChapterOrder {
		if targets[pos] {
			ch, err := p.writeChapter(ctx, s, pos, toc, digest.String())
			if err != nil {
				return fmt.Errorf("rewrite chapter %d: %w", pos+1, err)
			}
			s.Chapters[pos] = ch
			done++
			p.emit(Event{
				Stage:          StageWrite,
				Message:        fmt.Sprintf("rewrote chapter %d/%d", done, len(targets)),
				Progress:       40 + 55*done/len(targets),
				CurrentChapter: pos + 1,
				TotalChapters:  len(s.ChapterOrder),
				ChapterName:    ch.Title,
			})
		}
		digest.add(s.Chapters[pos])
	}

	pipelineMetrics.observeStage(StageWrite, time.Since(start))
	p.logger.Info("pipeline.stage.rewrite.complete", "rewritten", done, "duration", time.Since(start))
	return nil
}

// CombineTutorial assembles the final document set: index.md with summary,
// relationship diagram, and table of contents, plus every chapter with its
// navigation trailer.
func (p *Pipeline) CombineTutorial(ctx context.Context, s *State) error {
	_ = ctx
	p.emit(Event{Stage: StageCombine, Message: "combining tutorial", Progress: 97})
	start := time.Now()

	out := make(map[string]string, len(s.Chapters)+1)
	out["index.md"] = renderIndex(s)
	for i := range s.Chapters {
		var prev, next *ChapterContent
		if i > 0 {
			prev = &s.Chapters[i-1]
		}
		if i+1 < len(s.Chapters) {
			next = &s.Chapters[i+1]
		}
		out[s.Chapters[i].Filename] = renderChapter(s.Chapters[i], prev, next)
	}

	s.Output = out
	s.GeneratedAt = time.Now().UTC()
	pipelineMetrics.observeStage(StageCombine, time.Since(start))
	p.logger.Info("pipeline.stage.combine.complete", "files", len(out), "duration", time.Since(start))
	p.emit(Event{Stage: StageCombine, Message: "done", Progress: 100})
	return nil
}

// complete issues one LLM call and records per-stage call metrics.
func (p *Pipeline) complete(ctx context.Context, stage, prompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: p.cfg.MaxTokens})
	pipelineMetrics.observeCall(stage, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("stage %s: llm call: %w", stage, err)
	}
	p.logger.Debug("pipeline.llm.call",
		"stage", stage,
		"prompt_tokens", resp.PromptTokens,
		"output_tokens", resp.OutputTokens,
		"duration", resp.Duration)
	return resp.Text, nil
}

// contextFiles adapts state files for the context builder, optionally
// restricted to a set of indices.
func contextFiles(files []FileEntry, only map[int]bool) []contextbuild.File {
	out := make([]contextbuild.File, 0, len(files))
	for i, f := range files {
		if only != nil && !only[i] {
			continue
		}
		out = append(out, contextbuild.File{Path: f.Path, Content: f.Content})
	}
	return out
}

// chapterFiles selects the abstraction's files in index order.
func chapterFiles(files []FileEntry, indices []int) []contextbuild.File {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	out := make([]contextbuild.File, 0, len(sorted))
	for _, i := range sorted {
		if i >= 0 && i < len(files) {
			out = append(out, contextbuild.File{Path: files[i].Path, Content: files[i].Content})
		}
	}
	return out
}

// projectNameFromURL derives a display name from the repository URL.
func projectNameFromURL(repoURL string) string {
	s := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(repoURL), "/"), ".git")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "project"
	}
	return s
}
