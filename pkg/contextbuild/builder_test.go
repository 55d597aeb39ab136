// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package contextbuild

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_PriorityOrder(t *testing.T) {
	files := []File{
		{Path: "pkg/util/strings.go", Content: "package util"},
		{Path: "main.go", Content: "package main"},
		{Path: "internal/server/routes.go", Content: "package server"},
	}

	result := Build(files, ModeFull, 10_000)
	require.Len(t, result.IncludedFileIndices, 3)

	// main.go first, then routes.go (entry-style name beats depth), then
	// the remaining file.
	assert.Equal(t, []int{1, 2, 0}, result.IncludedFileIndices)
	mainPos := strings.Index(result.Text, "main.go")
	routesPos := strings.Index(result.Text, "routes.go")
	assert.Less(t, mainPos, routesPos)
}

func TestBuild_StopsAtBudget(t *testing.T) {
	big := strings.Repeat("x", 400)
	files := []File{
		{Path: "a.txt", Content: big},
		{Path: "b.txt", Content: big},
		{Path: "c.txt", Content: big},
	}

	// Budget admits roughly one file block.
	result := Build(files, ModeFull, 200)
	require.Len(t, result.IncludedFileIndices, 1)
	assert.Equal(t, 0, result.IncludedFileIndices[0])

	// A file is never split: the text carries the whole first block.
	assert.Contains(t, result.Text, big)
}

func TestBuild_IncludesFileHeaders(t *testing.T) {
	files := []File{{Path: "src/app.py", Content: "print('hi')"}}
	result := Build(files, ModeFull, 10_000)
	assert.Contains(t, result.Text, "--- File: 0 # src/app.py ---")
}

func TestTruncateHeadTail(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("line %03d padding padding padding", i))
	}
	content := strings.Join(lines, "\n")

	got := truncateHeadTail(content, len(content)/4)
	assert.Less(t, len(got), len(content))
	assert.Contains(t, got, "line 000")
	assert.Contains(t, got, "line 199")
	assert.Contains(t, got, "lines omitted ...")

	// Head portion dominates the tail portion.
	marker := strings.Index(got, "... ")
	require.Greater(t, marker, 0)
	assert.Greater(t, marker, len(got)-marker)
}

func TestTruncateHeadTail_Idempotent(t *testing.T) {
	content := strings.Repeat("some line of source text\n", 500)
	once := truncateHeadTail(content, 2000)
	twice := truncateHeadTail(once, 2000)
	assert.Equal(t, once, twice)
}

func TestTruncateHeadTail_WithinBudgetUnchanged(t *testing.T) {
	content := "short file\nwith two lines"
	assert.Equal(t, content, truncateHeadTail(content, 1000))
}

func TestBuild_Deterministic(t *testing.T) {
	files := []File{
		{Path: "b/y.go", Content: "package y\nfunc Y() {}"},
		{Path: "a/x.go", Content: "package x\nfunc X() {}"},
	}
	first := Build(files, ModeSignature, 5000)
	second := Build(files, ModeSignature, 5000)
	assert.Equal(t, first, second)
}
