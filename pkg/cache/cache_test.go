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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repodoc/pkg/pipeline"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("package main")
	b := Fingerprint("package main")
	c := Fingerprint("package other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestNormalizeRepoURL(t *testing.T) {
	want := "github.com/acme/widget"
	for _, in := range []string{
		"https://github.com/acme/widget",
		"https://github.com/Acme/Widget.git",
		"http://github.com/acme/widget/",
		"git@github.com:acme/widget.git",
		"github.com/acme/widget",
	} {
		assert.Equal(t, want, NormalizeRepoURL(in), in)
	}
}

func sampleIndex() *Index {
	return &Index{
		RepoURL: "github.com/acme/widget",
		Ref:     "main",
		FileHashes: map[string]string{
			"api.go":   Fingerprint("api v1"),
			"auth.go":  Fingerprint("auth v1"),
			"store.go": Fingerprint("store v1"),
		},
		Abstractions: []pipeline.Abstraction{
			{Name: "HTTP API", Description: "serves requests", FileIndices: []int{0}},
			{Name: "Auth", Description: "validates sessions", FileIndices: []int{1}},
			{Name: "Storage", Description: "persists data", FileIndices: []int{2}},
		},
		Relationships: []pipeline.Relationship{{From: 0, To: 1, Label: "authenticates via"}},
		Summary:       "a service",
		ChapterOrder:  []int{2, 1, 0},
		Chapters: []pipeline.ChapterContent{
			{Number: 1, AbstractionIndex: 2, Filename: "01_storage.md", Title: "Storage", Body: "# Chapter 1: Storage"},
			{Number: 2, AbstractionIndex: 1, Filename: "02_auth.md", Title: "Auth", Body: "# Chapter 2: Auth"},
			{Number: 3, AbstractionIndex: 0, Filename: "03_http_api.md", Title: "HTTP API", Body: "# Chapter 3: HTTP API"},
		},
		Output:      map[string]string{"index.md": "# widget"},
		GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sampleFiles() map[string]string {
	return map[string]string{
		"api.go":   "api v1",
		"auth.go":  "auth v1",
		"store.go": "store v1",
	}
}

func TestFilesystemStore_RoundTrip(t *testing.T) {
	store := NewFilesystemStore(t.TempDir())
	ctx := context.Background()
	key := NormalizeRepoURL("https://github.com/acme/widget")

	_, err := store.Load(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	idx := sampleIndex()
	require.NoError(t, store.Save(ctx, key, idx))

	got, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, idx.FileHashes, got.FileHashes)
	assert.Equal(t, idx.ChapterOrder, got.ChapterOrder)
	assert.Equal(t, idx.Chapters, got.Chapters)
	assert.True(t, idx.GeneratedAt.Equal(got.GeneratedAt))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"github.com_acme_widget"}, keys)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Load(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, key))
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k1", sampleIndex()))
	got, err := store.Load(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "a service", got.Summary)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_LoadedIndexIsIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k1", sampleIndex()))

	// Mutate the loaded copy the way a partial run does.
	got, err := store.Load(ctx, "k1")
	require.NoError(t, err)
	got.Chapters[0].Body = "rewritten"
	got.FileHashes["api.go"] = Fingerprint("api v2")
	got.Output["index.md"] = "clobbered"
	got.Abstractions[0].FileIndices[0] = 99

	reloaded, err := store.Load(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "# Chapter 1: Storage", reloaded.Chapters[0].Body)
	assert.Equal(t, Fingerprint("api v1"), reloaded.FileHashes["api.go"])
	assert.Equal(t, "# widget", reloaded.Output["index.md"])
	assert.Equal(t, []int{0}, reloaded.Abstractions[0].FileIndices)
}

func TestMemoryStore_SavedIndexIsIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	idx := sampleIndex()
	require.NoError(t, store.Save(ctx, "k1", idx))
	idx.Summary = "mutated after save"
	idx.Chapters[1].Body = "mutated after save"

	got, err := store.Load(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "a service", got.Summary)
	assert.Equal(t, "# Chapter 2: Auth", got.Chapters[1].Body)
}

func TestPlan_NoPrior(t *testing.T) {
	p := &Planner{}
	plan := p.Plan(nil, sampleFiles())
	assert.Equal(t, FullRun, plan.Action)
}

func TestPlan_Unchanged(t *testing.T) {
	p := &Planner{}
	plan := p.Plan(sampleIndex(), sampleFiles())
	assert.Equal(t, ReuseCached, plan.Action)
	assert.Empty(t, plan.ChangedPaths)
}

func TestPlan_SingleFileChanged(t *testing.T) {
	files := sampleFiles()
	files["auth.go"] = "auth v2"

	p := &Planner{}
	plan := p.Plan(sampleIndex(), files)

	require.Equal(t, PartialRun, plan.Action)
	assert.Equal(t, []string{"auth.go"}, plan.ChangedPaths)
	assert.False(t, plan.RerunAnalysis)

	// auth.go is file index 1 (path-sorted), feeding abstraction 1 (Auth),
	// which is chapter position 1 in the order [2 1 0].
	assert.Equal(t, []int{1}, plan.ChapterPositions)
}

func TestPlan_AddedFileForcesFullRun(t *testing.T) {
	files := sampleFiles()
	files["new.go"] = "new"

	p := &Planner{}
	plan := p.Plan(sampleIndex(), files)

	assert.Equal(t, FullRun, plan.Action)
	assert.True(t, plan.RerunAnalysis)
	assert.Equal(t, []string{"new.go"}, plan.AddedPaths)
}

func TestPlan_DeletedFileForcesFullRun(t *testing.T) {
	files := sampleFiles()
	delete(files, "store.go")

	p := &Planner{}
	plan := p.Plan(sampleIndex(), files)

	assert.Equal(t, FullRun, plan.Action)
	assert.True(t, plan.RerunAnalysis)
	assert.Equal(t, []string{"store.go"}, plan.DeletedPaths)
}

func TestPlan_DriftThreshold(t *testing.T) {
	files := sampleFiles()
	files["api.go"] = "api v2"
	files["auth.go"] = "auth v2"

	// 2 of 3 files changed: above the default threshold.
	p := &Planner{}
	plan := p.Plan(sampleIndex(), files)
	assert.Equal(t, FullRun, plan.Action)
	assert.True(t, plan.RerunAnalysis)

	// A permissive threshold keeps it partial.
	p = &Planner{DriftThreshold: 0.9}
	plan = p.Plan(sampleIndex(), files)
	assert.Equal(t, PartialRun, plan.Action)
	assert.Equal(t, []int{1, 2}, plan.ChapterPositions)
}

func TestPlan_ChangedFileOutsideAbstractions(t *testing.T) {
	// zz_notes.txt sorts after the source files, so the prior abstraction
	// indices still point at the same files.
	idx := sampleIndex()
	idx.FileHashes["zz_notes.txt"] = Fingerprint("notes v1")

	files := sampleFiles()
	files["zz_notes.txt"] = "notes v2"

	p := &Planner{}
	plan := p.Plan(idx, files)

	// The notes file feeds no abstraction, so the prior document stands.
	assert.Equal(t, ReuseCached, plan.Action)
}

func TestFromStateRestore(t *testing.T) {
	s := &pipeline.State{
		RepoURL: "https://github.com/Acme/Widget.git",
		Ref:     "main",
		Files: []pipeline.FileEntry{
			{Path: "a.go", Content: "alpha"},
			{Path: "b.go", Content: "beta"},
		},
		Abstractions: []pipeline.Abstraction{{Name: "A", Description: "d", FileIndices: []int{0}}},
		Summary:      "sum",
		ChapterOrder: []int{0},
		Chapters:     []pipeline.ChapterContent{{Number: 1, Filename: "01_a.md", Title: "A", Body: "# Chapter 1: A"}},
		Output:       map[string]string{"index.md": "x"},
		GeneratedAt:  time.Now().UTC(),
	}

	idx := FromState(s)
	assert.Equal(t, "github.com/acme/widget", idx.RepoURL)
	assert.Equal(t, Fingerprint("alpha"), idx.FileHashes["a.go"])

	restored := &pipeline.State{RepoURL: s.RepoURL, Files: s.Files}
	idx.Restore(restored)
	assert.Equal(t, s.Summary, restored.Summary)
	assert.Equal(t, s.Chapters, restored.Chapters)
	assert.Equal(t, s.Output, restored.Output)
}
