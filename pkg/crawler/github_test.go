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

package crawler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub serves a minimal slice of the GitHub REST API for tests.
type fakeGitHub struct {
	defaultBranch string
	tree          []treeEntry
	truncated     bool
	blobs         map[string]string // sha -> content
	failBlobs     map[string]bool   // sha -> return 500
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/acme/widget":
			_ = json.NewEncoder(w).Encode(map[string]string{"default_branch": f.defaultBranch})
		case strings.HasPrefix(r.URL.Path, "/repos/acme/widget/git/trees/"):
			_ = json.NewEncoder(w).Encode(map[string]any{"tree": f.tree, "truncated": f.truncated})
		case strings.HasPrefix(r.URL.Path, "/repos/acme/widget/git/blobs/"):
			sha := strings.TrimPrefix(r.URL.Path, "/repos/acme/widget/git/blobs/")
			if f.failBlobs[sha] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			content, ok := f.blobs[sha]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"content":  base64.StdEncoding.EncodeToString([]byte(content)),
				"encoding": "base64",
			})
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newFake() *fakeGitHub {
	fake := &fakeGitHub{
		defaultBranch: "main",
		blobs:         map[string]string{},
		failBlobs:     map[string]bool{},
	}
	for i, path := range []string{"main.go", "internal/api.go", "internal/db.go", "vendor/dep.go", "docs/huge.bin"} {
		sha := fmt.Sprintf("sha%d", i)
		fake.tree = append(fake.tree, treeEntry{Path: path, Type: "blob", SHA: sha, Size: 100})
		fake.blobs[sha] = "package content for " + path
	}
	fake.tree = append(fake.tree, treeEntry{Path: "internal", Type: "tree", SHA: "treesha"})
	return fake
}

func TestCrawl_FilterStats(t *testing.T) {
	fake := newFake()
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	c := New(nil, WithAPIBase(server.URL))
	result, err := c.Crawl(context.Background(), Request{
		RepoURL:      "https://github.com/acme/widget",
		ExcludeGlobs: []string{"vendor/**", "*.bin"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Stats.DownloadedCount)
	assert.Equal(t, 2, result.Stats.ExcludedCount)
	assert.Equal(t, 0, result.Stats.SkippedCount)
	assert.Equal(t, "main", result.Ref)
	assert.Len(t, result.Files, 3)
	assert.Contains(t, result.Files, "main.go")
	assert.NotContains(t, result.Files, "vendor/dep.go")
}

func TestCrawl_IncludeGlobs(t *testing.T) {
	fake := newFake()
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	c := New(nil, WithAPIBase(server.URL))
	result, err := c.Crawl(context.Background(), Request{
		RepoURL:      "github.com/acme/widget",
		IncludeGlobs: []string{"*.go"},
		ExcludeGlobs: []string{"vendor/**"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Stats.DownloadedCount)
	assert.Equal(t, []string{"internal/api.go", "internal/db.go", "main.go"}, result.SortedPaths())
}

func TestCrawl_BlobFailureIsSkippedNotFatal(t *testing.T) {
	fake := newFake()
	fake.failBlobs["sha1"] = true // internal/api.go
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	c := New(nil, WithAPIBase(server.URL))
	result, err := c.Crawl(context.Background(), Request{
		RepoURL:      "https://github.com/acme/widget",
		ExcludeGlobs: []string{"vendor/**", "*.bin"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.DownloadedCount)
	assert.Equal(t, 1, result.Stats.SkippedCount)
	assert.NotContains(t, result.Files, "internal/api.go")
}

func TestCrawl_MaxFileSize(t *testing.T) {
	fake := newFake()
	fake.tree[0].Size = 5000 // main.go too large
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	c := New(nil, WithAPIBase(server.URL))
	result, err := c.Crawl(context.Background(), Request{
		RepoURL:      "https://github.com/acme/widget",
		ExcludeGlobs: []string{"vendor/**", "*.bin"},
		MaxFileSize:  1000,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.DownloadedCount)
	assert.Equal(t, 3, result.Stats.ExcludedCount)
	assert.NotContains(t, result.Files, "main.go")
}

func TestCrawl_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(nil, WithAPIBase(server.URL))
	_, err := c.Crawl(context.Background(), Request{RepoURL: "https://github.com/acme/widget"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCrawl_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := New(nil, WithAPIBase(server.URL))
	_, err := c.Crawl(context.Background(), Request{RepoURL: "https://github.com/acme/widget"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCrawl_AuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(nil, WithAPIBase(server.URL))
	_, err := c.Crawl(context.Background(), Request{RepoURL: "https://github.com/acme/widget", Token: "bad"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in          string
		owner, repo string
		wantErr     bool
	}{
		{in: "https://github.com/acme/widget", owner: "acme", repo: "widget"},
		{in: "https://github.com/acme/widget.git", owner: "acme", repo: "widget"},
		{in: "github.com/acme/widget/", owner: "acme", repo: "widget"},
		{in: "acme/widget", owner: "acme", repo: "widget"},
		{in: "https://github.com/acme", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		owner, repo, err := parseRepoURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}
