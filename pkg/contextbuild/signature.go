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

package contextbuild

import "strings"

// blockKind classifies an open brace-delimited block during the scan.
type blockKind int

const (
	// blockScan: declaration lines are kept, everything else dropped.
	// Used at the top level and inside class-like containers so that
	// method signatures survive.
	blockScan blockKind = iota

	// blockVerbatim: every line is kept until the block closes. Used for
	// interface, struct, type, and enum bodies, whose members are the
	// signature.
	blockVerbatim

	// blockSkip: every line is dropped until the block closes. Used for
	// function and method bodies.
	blockSkip
)

// declPrefixes mark a line as a declaration worth keeping when seen in a
// scan block. Matching is prefix-based on the trimmed line; this is a lossy
// line scanner, not a parser.
var declPrefixes = []string{
	"import ", "import(", "from ", "export ", "package ", "module ",
	"using ", "#include", "require(", "require ",
	"func ", "function ", "function(", "def ", "async ",
	"class ", "type ", "interface ", "struct ", "enum ", "trait ", "impl ",
	"const ", "var ", "let ", "val ",
	"public ", "private ", "protected ", "static ", "abstract ",
	"@",
}

// verbatimKeywords open a block whose whole body is kept.
var verbatimKeywords = []string{"interface ", "struct ", "enum ", "type "}

// containerKeywords open a block that is scanned like the top level, so
// nested method signatures are kept but their bodies are not.
var containerKeywords = []string{"class ", "impl ", "trait ", "module ", "namespace "}

// ExtractSignatures reduces source text to a declarations-only form:
// imports and exports, type/interface/struct/enum bodies, and function,
// class, and method signatures with implementation bodies elided.
//
// The scan is a single pass over lines tracking nested-brace depth. It never
// attempts semantic parsing; braces inside strings or comments will confuse
// it, and that is accepted. Output is deterministic for identical input.
func ExtractSignatures(src string) string {
	var out []string
	stack := []blockKind{blockScan}
	parenGroup := 0 // open depth of a grouped import/const/var/type declaration

	for _, line := range strings.Split(src, "\n") {
		t := strings.TrimSpace(line)
		delta := strings.Count(line, "{") - strings.Count(line, "}")
		top := stack[len(stack)-1]

		// Paren-grouped declarations (Go's import/const/var/type blocks)
		// carry their members verbatim until the group closes.
		if parenGroup > 0 {
			out = append(out, line)
			parenGroup += strings.Count(line, "(") - strings.Count(line, ")")
			continue
		}

		switch top {
		case blockSkip:
			if delta < 0 {
				for ; delta < 0 && len(stack) > 1; delta++ {
					stack = stack[:len(stack)-1]
				}
				// Emit the closing line so braces stay balanced.
				if stack[len(stack)-1] != blockSkip {
					out = append(out, line)
				}
			} else {
				for ; delta > 0; delta-- {
					stack = append(stack, blockSkip)
				}
			}

		case blockVerbatim:
			out = append(out, line)
			for ; delta > 0; delta-- {
				stack = append(stack, blockVerbatim)
			}
			for ; delta < 0 && len(stack) > 1; delta++ {
				stack = stack[:len(stack)-1]
			}

		case blockScan:
			keep := isDeclaration(t)
			if keep {
				out = append(out, line)
				if delta == 0 && opensParenGroup(t) {
					parenGroup = strings.Count(line, "(") - strings.Count(line, ")")
				}
			} else if t == "}" && delta < 0 {
				out = append(out, line)
			}

			if delta > 0 {
				kind := blockSkip
				if keep {
					switch {
					case containsKeyword(t, verbatimKeywords):
						kind = blockVerbatim
					case containsKeyword(t, containerKeywords):
						kind = blockScan
					}
				}
				for ; delta > 0; delta-- {
					stack = append(stack, kind)
				}
			} else {
				for ; delta < 0 && len(stack) > 1; delta++ {
					stack = stack[:len(stack)-1]
				}
			}
		}
	}

	return collapseBlank(out)
}

// opensParenGroup reports whether a declaration opens a paren-delimited
// group whose members should be carried verbatim.
func opensParenGroup(trimmed string) bool {
	if strings.Count(trimmed, "(") <= strings.Count(trimmed, ")") {
		return false
	}
	for _, k := range []string{"import", "const", "var", "type"} {
		if strings.HasPrefix(trimmed, k+" ") || strings.HasPrefix(trimmed, k+"(") {
			return true
		}
	}
	return false
}

func isDeclaration(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	for _, p := range declPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func containsKeyword(trimmed string, keywords []string) bool {
	for _, k := range keywords {
		if strings.HasPrefix(trimmed, k) || strings.Contains(trimmed, " "+k) {
			return true
		}
	}
	return false
}

// collapseBlank joins kept lines, squeezing runs of blank lines to one.
func collapseBlank(lines []string) string {
	var b strings.Builder
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank = true
			continue
		}
		if blank && b.Len() > 0 {
			b.WriteByte('\n')
		}
		blank = false
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
