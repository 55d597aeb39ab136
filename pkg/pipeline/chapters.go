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
	"fmt"
	"strings"
	"unicode/utf8"
)

// Slugify lowercases a title and reduces it to alphanumerics separated by
// single underscores.
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	if b.Len() == 0 {
		return "chapter"
	}
	return b.String()
}

// ChapterFilename builds the on-disk name for a chapter, zero-padded so the
// files sort in reading order.
func ChapterFilename(number int, title string) string {
	return fmt.Sprintf("%02d_%s.md", number, Slugify(title))
}

// buildTOC renders the chapter table of contents as a markdown list.
func buildTOC(abstractions []Abstraction, order []int) string {
	var b strings.Builder
	for pos, ai := range order {
		number := pos + 1
		name := abstractions[ai].Name
		fmt.Fprintf(&b, "%d. [%s](%s)\n", number, name, ChapterFilename(number, name))
	}
	return b.String()
}

// digestAccumulator carries a running summary of written chapters so later
// chapters can build on their predecessors without repeating them.
type digestAccumulator struct {
	entries []string
}

// add records a chapter digest: its title and opening prose, truncated.
func (d *digestAccumulator) add(ch ChapterContent) {
	const maxExcerpt = 400

	excerpt := ch.Body
	if i := strings.Index(excerpt, "\n"); i >= 0 {
		excerpt = strings.TrimSpace(excerpt[i:])
	}
	if len(excerpt) > maxExcerpt {
		cut := maxExcerpt
		// Never cut a multi-byte rune in half.
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut] + "..."
	}
	d.entries = append(d.entries, fmt.Sprintf("Chapter %d (%s): %s", ch.Number, ch.Title, excerpt))
}

func (d *digestAccumulator) String() string {
	return strings.Join(d.entries, "\n\n")
}

// ensureHeading guarantees the chapter body starts with the expected
// heading, prepending it when the model omitted it.
func ensureHeading(body string, number int, title string) string {
	heading := fmt.Sprintf("# Chapter %d: %s", number, title)
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "# ") {
		return trimmed
	}
	return heading + "\n\n" + trimmed
}
