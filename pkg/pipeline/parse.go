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
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError marks structurally invalid LLM output. It is always fatal
// to the stage that produced it.
type ValidationError struct {
	Stage  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage %s: invalid response: %s", e.Stage, e.Reason)
}

func validationErrf(stage, format string, args ...any) *ValidationError {
	return &ValidationError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// extractYAMLBlock returns the body of the single fenced yaml block in an
// LLM reply. Zero or multiple blocks are a validation failure.
func extractYAMLBlock(stage, text string) (string, error) {
	const open = "```yaml"
	start := strings.Index(text, open)
	if start < 0 {
		return "", validationErrf(stage, "no fenced yaml block in response")
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", validationErrf(stage, "unterminated yaml block")
	}
	if strings.Contains(rest[end+3:], open) {
		return "", validationErrf(stage, "multiple yaml blocks in response")
	}
	return strings.TrimSpace(rest[:end]), nil
}

// normalizeIndex coerces a YAML scalar into a validated index in [0, n).
// Integers pass through; strings of the form "3 # some/path" have their
// leading integer extracted. This numeric-prefix repair is the only
// tolerated deviation from strict structure.
func normalizeIndex(stage, field string, v any, n int) (int, error) {
	var idx int
	switch x := v.(type) {
	case int:
		idx = x
	case int64:
		idx = int(x)
	case string:
		s := strings.TrimSpace(x)
		if i := strings.IndexByte(s, '#'); i >= 0 {
			s = strings.TrimSpace(s[:i])
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return 0, validationErrf(stage, "%s: cannot parse index from %q", field, x)
		}
		idx = parsed
	default:
		return 0, validationErrf(stage, "%s: unexpected index type %T", field, v)
	}

	if idx < 0 || idx >= n {
		return 0, validationErrf(stage, "%s: index %d out of range [0,%d)", field, idx, n)
	}
	return idx, nil
}

// rawAbstraction mirrors the YAML shape the identify stage requests.
type rawAbstraction struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	FileIndices []any  `yaml:"file_indices"`
}

// parseAbstractions validates the identify-stage reply against the file
// count and the configured abstraction cap.
func parseAbstractions(text string, fileCount, maxAbstractions int) ([]Abstraction, error) {
	const stage = "identify_abstractions"

	body, err := extractYAMLBlock(stage, text)
	if err != nil {
		return nil, err
	}

	var raw []rawAbstraction
	if err := yaml.Unmarshal([]byte(body), &raw); err != nil {
		return nil, validationErrf(stage, "yaml: %v", err)
	}

	if len(raw) < 3 || len(raw) > maxAbstractions {
		return nil, validationErrf(stage, "expected between 3 and %d abstractions, got %d", maxAbstractions, len(raw))
	}

	abstractions := make([]Abstraction, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Name) == "" {
			return nil, validationErrf(stage, "abstraction %d: missing name", i)
		}
		if strings.TrimSpace(r.Description) == "" {
			return nil, validationErrf(stage, "abstraction %d (%s): missing description", i, r.Name)
		}
		if len(r.FileIndices) == 0 {
			return nil, validationErrf(stage, "abstraction %d (%s): missing file_indices", i, r.Name)
		}

		seen := make(map[int]bool)
		var indices []int
		for _, v := range r.FileIndices {
			idx, err := normalizeIndex(stage, fmt.Sprintf("abstraction %d (%s) file_indices", i, r.Name), v, fileCount)
			if err != nil {
				return nil, err
			}
			if seen[idx] {
				continue
			}
			seen[idx] = true
			indices = append(indices, idx)
		}

		abstractions = append(abstractions, Abstraction{
			Name:        strings.TrimSpace(r.Name),
			Description: strings.TrimSpace(r.Description),
			FileIndices: indices,
		})
	}
	return abstractions, nil
}

// rawAnalysis mirrors the YAML shape the relationship stage requests.
type rawAnalysis struct {
	Summary       string `yaml:"summary"`
	Relationships []struct {
		From  any    `yaml:"from_abstraction"`
		To    any    `yaml:"to_abstraction"`
		Label string `yaml:"label"`
	} `yaml:"relationships"`
}

// parseAnalysis validates the relationship-stage reply against the
// abstraction count.
func parseAnalysis(text string, abstractionCount int) (string, []Relationship, error) {
	const stage = "analyze_relationships"

	body, err := extractYAMLBlock(stage, text)
	if err != nil {
		return "", nil, err
	}

	var raw rawAnalysis
	if err := yaml.Unmarshal([]byte(body), &raw); err != nil {
		return "", nil, validationErrf(stage, "yaml: %v", err)
	}

	if strings.TrimSpace(raw.Summary) == "" {
		return "", nil, validationErrf(stage, "missing summary")
	}
	if len(raw.Relationships) == 0 {
		return "", nil, validationErrf(stage, "missing relationships")
	}

	rels := make([]Relationship, 0, len(raw.Relationships))
	for i, r := range raw.Relationships {
		from, err := normalizeIndex(stage, fmt.Sprintf("relationship %d from_abstraction", i), r.From, abstractionCount)
		if err != nil {
			return "", nil, err
		}
		to, err := normalizeIndex(stage, fmt.Sprintf("relationship %d to_abstraction", i), r.To, abstractionCount)
		if err != nil {
			return "", nil, err
		}
		if strings.TrimSpace(r.Label) == "" {
			return "", nil, validationErrf(stage, "relationship %d: missing label", i)
		}
		rels = append(rels, Relationship{From: from, To: to, Label: strings.TrimSpace(r.Label)})
	}
	return strings.TrimSpace(raw.Summary), rels, nil
}

// parseOrder validates the ordering-stage reply as an exact permutation of
// [0, abstractionCount). Duplicates and omissions are named in the error.
func parseOrder(text string, abstractionCount int) ([]int, error) {
	const stage = "order_chapters"

	body, err := extractYAMLBlock(stage, text)
	if err != nil {
		return nil, err
	}

	var raw []any
	if err := yaml.Unmarshal([]byte(body), &raw); err != nil {
		return nil, validationErrf(stage, "yaml: %v", err)
	}

	if len(raw) != abstractionCount {
		return nil, validationErrf(stage, "expected %d entries, got %d", abstractionCount, len(raw))
	}

	seen := make(map[int]bool, abstractionCount)
	order := make([]int, 0, abstractionCount)
	for i, v := range raw {
		idx, err := normalizeIndex(stage, fmt.Sprintf("order entry %d", i), v, abstractionCount)
		if err != nil {
			return nil, err
		}
		if seen[idx] {
			return nil, validationErrf(stage, "not a permutation: index %d appears more than once", idx)
		}
		seen[idx] = true
		order = append(order, idx)
	}
	return order, nil
}
