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

// Package contextbuild assembles a token-budgeted textual context from
// repository files for LLM consumption.
//
// Files are appended in architectural-priority order (entry points first,
// then shallower paths) until the budget would overflow. Full mode carries
// verbatim content with head/tail truncation of oversized files; signature
// mode reduces each file to its declarations.
package contextbuild

import (
	"fmt"
	"sort"
	"strings"
)

// File is one candidate file for inclusion. Index positions in the input
// slice are the indices reported back in Result.
type File struct {
	Path    string
	Content string
}

// Mode selects the extraction strategy.
type Mode int

const (
	// ModeFull includes verbatim file content, truncating oversized files.
	ModeFull Mode = iota

	// ModeSignature reduces each file to imports, exports, and declaration
	// signatures with implementation bodies elided.
	ModeSignature
)

// Budget approximation constants. The usage ratio leaves headroom for the
// prompt scaffolding and the model's reply inside the same context window.
const (
	usageRatio    = 0.70
	charsPerToken = 3.5
)

// Result is the assembled context.
type Result struct {
	// Text is the concatenated file blocks.
	Text string

	// IncludedFileIndices are positions into the input slice, in the order
	// their blocks appear in Text.
	IncludedFileIndices []int
}

// Build assembles a context from files under a token budget. Files are
// visited in priority order and appended whole; the first file that would
// overflow the budget ends the scan. A file is never split across the
// budget boundary.
func Build(files []File, mode Mode, tokenBudget int) Result {
	maxChars := budgetChars(tokenBudget)

	// An individual file may not monopolize the window. Small budgets get
	// the whole allowance so at least one file fits.
	perFileCap := maxChars / 3
	if perFileCap < 4000 {
		perFileCap = maxChars
	}

	var b strings.Builder
	var included []int
	for _, i := range priorityOrder(files) {
		content := files[i].Content
		if mode == ModeSignature {
			content = ExtractSignatures(content)
		} else if len(content) > perFileCap {
			content = truncateHeadTail(content, perFileCap)
		}

		block := fmt.Sprintf("--- File: %d # %s ---\n%s\n\n", i, files[i].Path, content)
		if b.Len()+len(block) > maxChars {
			break
		}
		b.WriteString(block)
		included = append(included, i)
	}

	return Result{Text: b.String(), IncludedFileIndices: included}
}

// budgetChars converts a context-window token budget into a character
// allowance.
func budgetChars(tokens int) int {
	return int(float64(tokens) * usageRatio * charsPerToken)
}

// entryNames rank conventional entry-point basenames ahead of everything
// else. Lower rank sorts first.
var entryNames = []string{
	"main", "index", "app", "server", "cli", "routes", "router", "page", "layout",
}

// priorityOrder returns file indices sorted by architectural significance:
// entry-point names, then shallower paths, then lexicographic.
func priorityOrder(files []File) []int {
	idx := make([]int, len(files))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		pa, pb := files[idx[a]].Path, files[idx[b]].Path
		ra, rb := entryRank(pa), entryRank(pb)
		if ra != rb {
			return ra < rb
		}
		da, db := strings.Count(pa, "/"), strings.Count(pb, "/")
		if da != db {
			return da < db
		}
		return pa < pb
	})
	return idx
}

func entryRank(p string) int {
	base := p
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	base = strings.ToLower(base)
	for rank, name := range entryNames {
		if base == name {
			return rank
		}
	}
	return len(entryNames)
}

// truncateHeadTail reduces content to roughly maxChars by keeping the head
// (about 80% of the line allowance) and the tail (about 20%), with an
// explicit omission marker between them. Content already within the
// allowance is returned unchanged, which makes the operation idempotent.
func truncateHeadTail(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}

	lines := strings.Split(content, "\n")
	avgLine := len(content)/len(lines) + 1
	allowance := maxChars / avgLine
	if allowance < 3 {
		allowance = 3
	}
	if allowance >= len(lines) {
		return content
	}

	head := allowance * 8 / 10
	tail := allowance - head
	if head < 1 {
		head = 1
	}
	if tail < 1 {
		tail = 1
	}
	omitted := len(lines) - head - tail

	var b strings.Builder
	b.WriteString(strings.Join(lines[:head], "\n"))
	fmt.Fprintf(&b, "\n... %d lines omitted ...\n", omitted)
	b.WriteString(strings.Join(lines[len(lines)-tail:], "\n"))
	return b.String()
}
