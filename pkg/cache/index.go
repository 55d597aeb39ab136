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

// Package cache persists generation results keyed by repository identity
// and decides, from content fingerprints, how much of a new run can be
// skipped: everything, nothing, or a subset of chapters.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/kraklabs/repodoc/pkg/pipeline"
)

// Fingerprint returns the sha256 hex digest of file content. Equal content
// always yields an equal fingerprint; path and mtime play no part.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NormalizeRepoURL reduces equivalent repository URLs to one cache key:
// scheme, a trailing .git, and trailing slashes are stripped, and the
// host/owner/repo part is lowercased.
func NormalizeRepoURL(repoURL string) string {
	s := strings.TrimSpace(repoURL)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "git@")
	s = strings.ReplaceAll(s, ":", "/")
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")
	return strings.ToLower(s)
}

// Index is the persisted outcome of one generation run plus the
// fingerprints needed to judge whether it is still current.
type Index struct {
	RepoURL string `json:"repo_url"`
	Ref     string `json:"ref,omitempty"`

	// FileHashes maps repository path to content fingerprint at the time
	// the run completed.
	FileHashes map[string]string `json:"file_hashes"`

	Abstractions  []pipeline.Abstraction    `json:"abstractions"`
	Relationships []pipeline.Relationship   `json:"relationships"`
	Summary       string                    `json:"summary"`
	ChapterOrder  []int                     `json:"chapter_order"`
	Chapters      []pipeline.ChapterContent `json:"chapters"`

	// Output maps filename to rendered markdown.
	Output map[string]string `json:"output"`

	GeneratedAt time.Time `json:"generated_at"`
}

// FromState captures a completed pipeline state as a cache index.
func FromState(s *pipeline.State) *Index {
	hashes := make(map[string]string, len(s.Files))
	for _, f := range s.Files {
		hashes[f.Path] = Fingerprint(f.Content)
	}
	return &Index{
		RepoURL:       NormalizeRepoURL(s.RepoURL),
		Ref:           s.Ref,
		FileHashes:    hashes,
		Abstractions:  s.Abstractions,
		Relationships: s.Relationships,
		Summary:       s.Summary,
		ChapterOrder:  s.ChapterOrder,
		Chapters:      s.Chapters,
		Output:        s.Output,
		GeneratedAt:   s.GeneratedAt,
	}
}

// clone returns a deep copy. Stores hand out clones so a caller mutating a
// loaded index (a partial run rewrites Chapters in place) cannot corrupt the
// stored entry between Save calls.
func (idx *Index) clone() *Index {
	out := *idx
	if idx.FileHashes != nil {
		out.FileHashes = make(map[string]string, len(idx.FileHashes))
		for k, v := range idx.FileHashes {
			out.FileHashes[k] = v
		}
	}
	if idx.Abstractions != nil {
		out.Abstractions = make([]pipeline.Abstraction, len(idx.Abstractions))
		copy(out.Abstractions, idx.Abstractions)
		for i, a := range out.Abstractions {
			out.Abstractions[i].FileIndices = append([]int(nil), a.FileIndices...)
		}
	}
	if idx.Relationships != nil {
		out.Relationships = append([]pipeline.Relationship(nil), idx.Relationships...)
	}
	if idx.ChapterOrder != nil {
		out.ChapterOrder = append([]int(nil), idx.ChapterOrder...)
	}
	if idx.Chapters != nil {
		out.Chapters = append([]pipeline.ChapterContent(nil), idx.Chapters...)
	}
	if idx.Output != nil {
		out.Output = make(map[string]string, len(idx.Output))
		for k, v := range idx.Output {
			out.Output[k] = v
		}
	}
	return &out
}

// Restore copies the cached run back onto a pipeline state, leaving the
// state's file set untouched.
func (idx *Index) Restore(s *pipeline.State) {
	s.Abstractions = idx.Abstractions
	s.Relationships = idx.Relationships
	s.Summary = idx.Summary
	s.ChapterOrder = idx.ChapterOrder
	s.Chapters = idx.Chapters
	s.Output = idx.Output
	s.GeneratedAt = idx.GeneratedAt
}
