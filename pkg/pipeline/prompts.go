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

// identifyPrompt asks for the repository's major abstractions as a fenced
// yaml list. File references use the "index # path" form the context
// builder emits.
func identifyPrompt(projectName, context string, fileCount, maxAbstractions int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing the codebase of the project %q.\n\n", projectName)
	b.WriteString("Below is a declarations-only view of the repository. Each file is introduced by a header of the form `--- File: <index> # <path> ---`.\n\n")
	b.WriteString(context)
	fmt.Fprintf(&b, "\nIdentify the %d to %d most important abstractions (core subsystems, layers, or concepts) a newcomer must understand.\n\n", 3, maxAbstractions)
	b.WriteString("For each abstraction provide:\n")
	b.WriteString("- name: a short, specific title\n")
	b.WriteString("- description: 1-3 sentences explaining its responsibility\n")
	fmt.Fprintf(&b, "- file_indices: the indices of its most relevant files (valid range 0 to %d)\n\n", fileCount-1)
	b.WriteString("Reply with exactly one fenced yaml block:\n\n")
	b.WriteString("```yaml\n- name: Example Subsystem\n  description: What it does and why it exists.\n  file_indices:\n    - 0\n    - 4\n```\n")
	return b.String()
}

// analyzePrompt asks for a project summary plus directed relationships
// between the already-identified abstractions.
func analyzePrompt(projectName, context string, abstractions []Abstraction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing how the abstractions of the project %q interact.\n\n", projectName)
	b.WriteString("Abstractions (refer to them by index):\n")
	for i, a := range abstractions {
		fmt.Fprintf(&b, "%d. %s: %s\n", i, a.Name, a.Description)
	}
	b.WriteString("\nRelevant source files:\n\n")
	b.WriteString(context)
	b.WriteString("\nProduce:\n")
	b.WriteString("- summary: a paragraph describing the project for a newcomer\n")
	b.WriteString("- relationships: directed edges between abstractions, each with a short verb-phrase label (e.g. \"dispatches jobs to\")\n\n")
	fmt.Fprintf(&b, "Indices must be between 0 and %d. Every abstraction should appear in at least one relationship.\n\n", len(abstractions)-1)
	b.WriteString("Reply with exactly one fenced yaml block:\n\n")
	b.WriteString("```yaml\nsummary: |\n  One paragraph.\nrelationships:\n  - from_abstraction: 0\n    to_abstraction: 1\n    label: sends requests to\n```\n")
	return b.String()
}

// orderPrompt asks for a pedagogical chapter order over all abstractions.
func orderPrompt(projectName, summary string, abstractions []Abstraction, relationships []Relationship) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are ordering tutorial chapters for the project %q.\n\nProject summary:\n%s\n\n", projectName, summary)
	b.WriteString("Abstractions:\n")
	for i, a := range abstractions {
		fmt.Fprintf(&b, "%d. %s: %s\n", i, a.Name, a.Description)
	}
	b.WriteString("\nRelationships:\n")
	for _, r := range relationships {
		fmt.Fprintf(&b, "- %s %s %s\n", abstractions[r.From].Name, r.Label, abstractions[r.To].Name)
	}
	fmt.Fprintf(&b, "\nReturn the best order to explain these %d abstractions, foundations first, each exactly once.\n\n", len(abstractions))
	b.WriteString("Reply with exactly one fenced yaml block listing every abstraction index once:\n\n")
	b.WriteString("```yaml\n- 2 # Foundation Layer\n- 0 # Core Engine\n- 1 # API Surface\n```\n")
	return b.String()
}

// chapterPrompt asks for the prose of one chapter, carrying the full table
// of contents, a digest of previously written chapters, and the neighbor
// links, so chapters read as a continuous tutorial.
func chapterPrompt(projectName string, ch ChapterContent, abstraction Abstraction, context, toc, priorDigest, prevLink, nextLink string, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are writing chapter %d of %d of a tutorial for the project %q.\n\n", ch.Number, total, projectName)
	fmt.Fprintf(&b, "This chapter covers: %s\n%s\n\n", abstraction.Name, abstraction.Description)
	fmt.Fprintf(&b, "Full table of contents (link to other chapters by their filenames):\n%s\n", toc)
	if priorDigest != "" {
		fmt.Fprintf(&b, "\nWhat earlier chapters already covered:\n%s\n", priorDigest)
	}
	b.WriteString("\nRelevant source files:\n\n")
	b.WriteString(context)
	fmt.Fprintf(&b, "\nWrite the chapter in markdown. Start with the heading `# Chapter %d: %s`.\n", ch.Number, abstraction.Name)
	b.WriteString("Explain the abstraction bottom-up with short code excerpts from the files above. Do not repeat material from earlier chapters; reference them instead.\n")
	if prevLink != "" {
		fmt.Fprintf(&b, "End by linking to the previous chapter (%s)", prevLink)
		if nextLink != "" {
			fmt.Fprintf(&b, " and the next chapter (%s)", nextLink)
		}
		b.WriteString(".\n")
	} else if nextLink != "" {
		fmt.Fprintf(&b, "End by linking to the next chapter (%s).\n", nextLink)
	}
	b.WriteString("Reply with the markdown only, no fences around the whole document.\n")
	return b.String()
}
