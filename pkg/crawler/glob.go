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

package crawler

import (
	"path"
	"strings"
)

// MatchGlob reports whether a slash-separated repository path matches a
// glob pattern. Supported syntax:
//   - *  : any sequence of non-separator characters
//   - ** : any sequence of characters, including separators
//   - ?  : any single non-separator character
//   - [abc], [a-z], [!abc] : character classes
//
// A pattern without ** can match anywhere in the path (implicit **/ prefix),
// so "*.min.js" excludes minified files at any depth.
func MatchGlob(p, pattern string) bool {
	p = path.Clean(strings.TrimPrefix(p, "./"))

	// dir/** also matches the directory itself and at any depth.
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
		parts := strings.Split(p, "/")
		for i := range parts {
			sub := strings.Join(parts[i:], "/")
			if sub == prefix || strings.HasPrefix(sub, prefix+"/") {
				return true
			}
		}
	}

	// Bare extension pattern: *.ext matches at any depth.
	if strings.HasPrefix(pattern, "*.") && !strings.Contains(pattern, "/") {
		return strings.HasSuffix(p, pattern[1:])
	}

	// **/name matches name at the root or below any directory.
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		if matchSegments(p, rest) {
			return true
		}
		parts := strings.Split(p, "/")
		for i := range parts {
			if matchSegments(strings.Join(parts[i:], "/"), rest) {
				return true
			}
		}
		return false
	}

	// Literal pattern: exact match or whole path component.
	if !strings.ContainsAny(pattern, "*?[") {
		return p == pattern || strings.HasSuffix(p, "/"+pattern) || strings.HasPrefix(p, pattern+"/")
	}

	if matchSegments(p, pattern) {
		return true
	}

	// Implicit **/ prefix: try every path suffix.
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		if matchSegments(strings.Join(parts[i:], "/"), pattern) {
			return true
		}
	}
	return false
}

// MatchAny reports whether the path matches at least one of the patterns.
func MatchAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if MatchGlob(p, pattern) {
			return true
		}
	}
	return false
}

// matchSegments matches a full path against a pattern anchored at the start.
func matchSegments(p, pattern string) bool {
	return matchRecursive(p, pattern, 0, 0)
}

func matchRecursive(p, pattern string, pi, ti int) bool {
	for pi < len(p) || ti < len(pattern) {
		if ti >= len(pattern) {
			return false
		}

		// ** crosses separators.
		if ti+1 < len(pattern) && pattern[ti] == '*' && pattern[ti+1] == '*' {
			next := ti + 2
			if next < len(pattern) && pattern[next] == '/' {
				next++
			}
			if next >= len(pattern) {
				return true
			}
			for i := pi; i <= len(p); i++ {
				if matchRecursive(p, pattern, i, next) {
					return true
				}
			}
			return false
		}

		// * stops at separators.
		if pattern[ti] == '*' {
			next := ti + 1
			for i := pi; i <= len(p); i++ {
				if i > pi && p[i-1] == '/' {
					break
				}
				if matchRecursive(p, pattern, i, next) {
					return true
				}
			}
			return false
		}

		if pattern[ti] == '?' {
			if pi >= len(p) || p[pi] == '/' {
				return false
			}
			pi++
			ti++
			continue
		}

		if pattern[ti] == '[' {
			if pi >= len(p) {
				return false
			}
			closeIdx := strings.IndexByte(pattern[ti+1:], ']')
			if closeIdx < 0 {
				// Malformed class, treat [ as a literal.
				if p[pi] != '[' {
					return false
				}
				pi++
				ti++
				continue
			}
			closeIdx += ti + 1
			if !matchCharClass(p[pi], pattern[ti+1:closeIdx]) {
				return false
			}
			pi++
			ti = closeIdx + 1
			continue
		}

		if pi >= len(p) || p[pi] != pattern[ti] {
			return false
		}
		pi++
		ti++
	}
	return pi == len(p) && ti == len(pattern)
}

// matchCharClass matches a byte against a class body: abc, a-z, !abc, ^abc.
func matchCharClass(c byte, class string) bool {
	if class == "" {
		return false
	}

	negated := false
	i := 0
	if class[0] == '!' || class[0] == '^' {
		negated = true
		i = 1
	}

	matched := false
	for i < len(class) {
		if i+2 < len(class) && class[i+1] == '-' {
			if c >= class[i] && c <= class[i+2] {
				matched = true
			}
			i += 3
			continue
		}
		if c == class[i] {
			matched = true
		}
		i++
	}

	if negated {
		return !matched
	}
	return matched
}
