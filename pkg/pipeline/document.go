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
)

// relationshipDiagram renders the abstraction graph as a mermaid flowchart.
// Node IDs are positional (A0, A1, ...) so labels may contain any text.
func relationshipDiagram(abstractions []Abstraction, relationships []Relationship) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for i, a := range abstractions {
		fmt.Fprintf(&b, "    A%d[%q]\n", i, a.Name)
	}
	for _, r := range relationships {
		fmt.Fprintf(&b, "    A%d -->|%q| A%d\n", r.From, r.Label, r.To)
	}
	return b.String()
}

// renderIndex builds index.md: summary, relationship diagram, and the
// chapter table of contents.
func renderIndex(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.ProjectName)
	b.WriteString(s.Summary)
	b.WriteString("\n\n")
	if s.RepoURL != "" {
		fmt.Fprintf(&b, "Source: [%s](%s)\n\n", s.RepoURL, s.RepoURL)
	}
	b.WriteString("```mermaid\n")
	b.WriteString(relationshipDiagram(s.Abstractions, s.Relationships))
	b.WriteString("```\n\n")
	b.WriteString("## Chapters\n\n")
	b.WriteString(buildTOC(s.Abstractions, s.ChapterOrder))
	b.WriteString("\n")
	b.WriteString(documentTrailer)
	return b.String()
}

// documentTrailer closes every generated file.
const documentTrailer = "---\n\nGenerated by repodoc\n"

// renderChapter finalizes one chapter body with navigation links and the
// trailer.
func renderChapter(ch ChapterContent, prev, next *ChapterContent) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(ch.Body))
	b.WriteString("\n\n---\n\n")
	if prev != nil {
		fmt.Fprintf(&b, "Previous: [%s](%s)", prev.Title, prev.Filename)
		if next != nil {
			b.WriteString(" | ")
		}
	}
	if next != nil {
		fmt.Fprintf(&b, "Next: [%s](%s)", next.Title, next.Filename)
	}
	if prev != nil || next != nil {
		b.WriteString("\n\n")
	}
	b.WriteString(documentTrailer)
	return b.String()
}
