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

package cache

import (
	"log/slog"
	"sort"
)

// Action is the planner's verdict for a run.
type Action int

const (
	// FullRun regenerates everything.
	FullRun Action = iota

	// ReuseCached returns the prior result without any LLM calls.
	ReuseCached

	// PartialRun keeps the prior analysis and rewrites only the chapters
	// whose source files changed.
	PartialRun
)

func (a Action) String() string {
	switch a {
	case FullRun:
		return "full"
	case ReuseCached:
		return "cached"
	case PartialRun:
		return "partial"
	default:
		return "unknown"
	}
}

// Plan describes how much of a new run the cache can absorb.
type Plan struct {
	Action Action

	// ChapterPositions are reading-order positions to rewrite when Action
	// is PartialRun, ascending.
	ChapterPositions []int

	// RerunAnalysis is set when structural drift is suspected: files were
	// added or deleted, or the changed fraction crossed the threshold. The
	// planner then demands a full run rather than patching chapters on top
	// of a stale abstraction graph.
	RerunAnalysis bool

	ChangedPaths []string
	AddedPaths   []string
	DeletedPaths []string
}

// DefaultDriftThreshold is the changed-file fraction above which the prior
// analysis is considered stale.
const DefaultDriftThreshold = 0.5

// Planner compares a prior index against the current file set.
type Planner struct {
	// DriftThreshold overrides DefaultDriftThreshold when positive.
	DriftThreshold float64

	Logger *slog.Logger
}

// Plan decides the action for the current file set given the prior run.
// A nil prior always yields FullRun.
func (p *Planner) Plan(prior *Index, currentFiles map[string]string) Plan {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := p.DriftThreshold
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}

	if prior == nil || len(prior.FileHashes) == 0 {
		return Plan{Action: FullRun}
	}

	plan := diffFiles(prior, currentFiles)
	switch {
	case len(plan.AddedPaths) == 0 && len(plan.DeletedPaths) == 0 && len(plan.ChangedPaths) == 0:
		plan.Action = ReuseCached

	case len(plan.AddedPaths) > 0 || len(plan.DeletedPaths) > 0:
		// Added or deleted files shift file indices and likely the
		// abstraction set itself.
		plan.Action = FullRun
		plan.RerunAnalysis = true

	case float64(len(plan.ChangedPaths))/float64(len(prior.FileHashes)) > threshold:
		plan.Action = FullRun
		plan.RerunAnalysis = true

	default:
		plan.Action = PartialRun
		plan.ChapterPositions = affectedChapters(prior, plan.ChangedPaths)
		if len(plan.ChapterPositions) == 0 {
			// The changed files feed no chapter; the prior document
			// stands.
			plan.Action = ReuseCached
		}
	}

	logger.Debug("cache.plan",
		"action", plan.Action.String(),
		"changed", len(plan.ChangedPaths),
		"added", len(plan.AddedPaths),
		"deleted", len(plan.DeletedPaths),
		"chapters", plan.ChapterPositions,
		"rerun_analysis", plan.RerunAnalysis,
	)
	return plan
}

// diffFiles fingerprints the current set against the prior hashes.
func diffFiles(prior *Index, currentFiles map[string]string) Plan {
	var plan Plan
	for path, content := range currentFiles {
		prev, ok := prior.FileHashes[path]
		switch {
		case !ok:
			plan.AddedPaths = append(plan.AddedPaths, path)
		case prev != Fingerprint(content):
			plan.ChangedPaths = append(plan.ChangedPaths, path)
		}
	}
	for path := range prior.FileHashes {
		if _, ok := currentFiles[path]; !ok {
			plan.DeletedPaths = append(plan.DeletedPaths, path)
		}
	}
	sort.Strings(plan.ChangedPaths)
	sort.Strings(plan.AddedPaths)
	sort.Strings(plan.DeletedPaths)
	return plan
}

// affectedChapters maps changed paths through the prior run's file indices
// and abstraction references to reading-order chapter positions.
func affectedChapters(prior *Index, changedPaths []string) []int {
	// File indices refer to the path-sorted file list of the prior run.
	paths := make([]string, 0, len(prior.FileHashes))
	for p := range prior.FileHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	indexOf := make(map[string]int, len(paths))
	for i, p := range paths {
		indexOf[p] = i
	}

	changedIdx := make(map[int]bool, len(changedPaths))
	for _, p := range changedPaths {
		if i, ok := indexOf[p]; ok {
			changedIdx[i] = true
		}
	}

	affected := make(map[int]bool)
	for ai, a := range prior.Abstractions {
		for _, fi := range a.FileIndices {
			if changedIdx[fi] {
				affected[ai] = true
				break
			}
		}
	}

	var positions []int
	for pos, ai := range prior.ChapterOrder {
		if affected[ai] {
			positions = append(positions, pos)
		}
	}
	return positions
}
