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

// Package crawler fetches repository file contents from the GitHub REST API.
//
// A crawl resolves the default branch (when no ref is given), lists the full
// recursive tree in one call, filters tree entries through include/exclude
// globs and a size ceiling, then downloads the surviving blobs in fixed-size
// parallel batches. Individual blob failures are counted as skipped and do
// not abort the crawl.
package crawler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"
)

// Sentinel errors classified from HTTP status codes. Callers use errors.Is
// to distinguish transport failures.
var (
	// ErrNotFound indicates the repository, ref, or tree does not exist
	// (or is private and the token cannot see it).
	ErrNotFound = errors.New("repository not found")

	// ErrAuth indicates the token was rejected or is required.
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimited indicates the API rate limit is exhausted.
	ErrRateLimited = errors.New("rate limited")
)

// DefaultBatchSize bounds concurrent blob downloads per batch.
const DefaultBatchSize = 10

// Request describes one crawl.
type Request struct {
	// RepoURL is the repository location, e.g. https://github.com/owner/repo.
	RepoURL string

	// Ref is a branch, tag, or commit SHA. Empty means the default branch.
	Ref string

	// Token is a bearer token for private repositories and higher rate limits.
	Token string

	// IncludeGlobs, when non-empty, admits only matching paths.
	IncludeGlobs []string

	// ExcludeGlobs rejects matching paths. Exclusion wins over inclusion.
	ExcludeGlobs []string

	// MaxFileSize rejects blobs larger than this many bytes (0 = no limit).
	MaxFileSize int64

	// BatchSize bounds concurrent blob downloads (default DefaultBatchSize).
	BatchSize int
}

// Stats aggregates crawl observability counters.
type Stats struct {
	// DownloadedCount is the number of files fetched into the result.
	DownloadedCount int `json:"downloaded_count"`

	// SkippedCount is the number of blobs whose download failed (non-fatal).
	SkippedCount int `json:"skipped_count"`

	// ExcludedCount is the number of tree entries rejected by filters
	// (glob mismatch or size ceiling).
	ExcludedCount int `json:"excluded_count"`

	// APIRequests is the total number of REST calls issued.
	APIRequests int `json:"api_requests"`

	// TreeTruncated is set when the provider truncated the recursive tree.
	TreeTruncated bool `json:"tree_truncated,omitempty"`
}

// Result holds the crawled files keyed by repository-relative path.
type Result struct {
	Files map[string]string
	Ref   string
	Stats Stats
}

// SortedPaths returns the file paths in deterministic order.
func (r *Result) SortedPaths() []string {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Crawler downloads repository contents from the GitHub REST API.
type Crawler struct {
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithAPIBase overrides the API base URL (GitHub Enterprise, tests).
func WithAPIBase(base string) Option {
	return func(c *Crawler) { c.apiBase = strings.TrimSuffix(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Crawler) { c.client = hc }
}

// New creates a Crawler.
func New(logger *slog.Logger, opts ...Option) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Crawler{
		apiBase: "https://api.github.com",
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// treeEntry is one node of the recursive git tree.
type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// Crawl fetches the repository tree and downloads all files that survive
// filtering. A failed blob download is counted and skipped; tree-level and
// repository-level failures abort the crawl.
func (c *Crawler) Crawl(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	owner, repo, err := parseRepoURL(req.RepoURL)
	if err != nil {
		return nil, err
	}

	result := &Result{Files: make(map[string]string)}

	ref := req.Ref
	if ref == "" {
		ref, err = c.defaultBranch(ctx, owner, repo, req.Token, &result.Stats)
		if err != nil {
			return nil, fmt.Errorf("resolve default branch for %s/%s: %w", owner, repo, err)
		}
		c.logger.Debug("crawl.default_branch", "owner", owner, "repo", repo, "branch", ref)
	}
	result.Ref = ref

	c.logger.Info("crawl.tree.start", "owner", owner, "repo", repo, "ref", ref)
	entries, truncated, err := c.fetchTree(ctx, owner, repo, ref, req.Token, &result.Stats)
	if err != nil {
		return nil, fmt.Errorf("fetch tree for %s/%s@%s: %w", owner, repo, ref, err)
	}
	result.Stats.TreeTruncated = truncated
	if truncated {
		// The provider caps recursive listings; a partial tree still yields
		// a useful crawl, so this is logged rather than fatal.
		c.logger.Warn("crawl.tree.truncated", "owner", owner, "repo", repo, "entries", len(entries))
	}

	wanted := c.filterEntries(entries, req, &result.Stats)
	c.logger.Info("crawl.filter.complete",
		"total_entries", len(entries),
		"wanted", len(wanted),
		"excluded", result.Stats.ExcludedCount,
	)

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	c.downloadBlobs(ctx, owner, repo, req.Token, wanted, batchSize, result)

	crawlerMetrics.observe(result.Stats, time.Since(start).Seconds())
	c.logger.Info("crawl.complete",
		"downloaded", result.Stats.DownloadedCount,
		"skipped", result.Stats.SkippedCount,
		"excluded", result.Stats.ExcludedCount,
		"api_requests", result.Stats.APIRequests,
		"duration", time.Since(start),
	)
	return result, nil
}

// filterEntries applies the blob-only, glob, and size filters.
func (c *Crawler) filterEntries(entries []treeEntry, req Request, stats *Stats) []treeEntry {
	var wanted []treeEntry
	for _, e := range entries {
		if e.Type != "blob" {
			continue
		}
		if MatchAny(e.Path, req.ExcludeGlobs) {
			stats.ExcludedCount++
			continue
		}
		if len(req.IncludeGlobs) > 0 && !MatchAny(e.Path, req.IncludeGlobs) {
			stats.ExcludedCount++
			continue
		}
		if req.MaxFileSize > 0 && e.Size > req.MaxFileSize {
			c.logger.Debug("crawl.filter.too_large", "path", e.Path, "size", e.Size, "limit", req.MaxFileSize)
			stats.ExcludedCount++
			continue
		}
		wanted = append(wanted, e)
	}
	return wanted
}

// downloadBlobs fetches blob contents in fixed-size parallel batches.
// Batching bounds open connections and keeps us under provider throttling.
func (c *Crawler) downloadBlobs(ctx context.Context, owner, repo, token string, entries []treeEntry, batchSize int, result *Result) {
	type blobResult struct {
		path    string
		content string
		err     error
	}

	var apiRequests int
	var mu sync.Mutex

	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		results := make(chan blobResult, len(batch))
		var wg sync.WaitGroup
		for _, e := range batch {
			wg.Add(1)
			go func(e treeEntry) {
				defer wg.Done()
				select {
				case <-ctx.Done():
					results <- blobResult{path: e.Path, err: ctx.Err()}
					return
				default:
				}
				content, err := c.fetchBlob(ctx, owner, repo, e.SHA, token)
				mu.Lock()
				apiRequests++
				mu.Unlock()
				results <- blobResult{path: e.Path, content: content, err: err}
			}(e)
		}
		wg.Wait()
		close(results)

		for br := range results {
			if br.err != nil {
				result.Stats.SkippedCount++
				c.logger.Warn("crawl.blob.skip", "path", br.path, "err", br.err)
				continue
			}
			result.Files[br.path] = br.content
			result.Stats.DownloadedCount++
		}
	}

	result.Stats.APIRequests += apiRequests
}

// defaultBranch resolves the repository's default branch.
func (c *Crawler) defaultBranch(ctx context.Context, owner, repo, token string, stats *Stats) (string, error) {
	var meta struct {
		DefaultBranch string `json:"default_branch"`
	}
	u := fmt.Sprintf("%s/repos/%s/%s", c.apiBase, owner, repo)
	if err := c.getJSON(ctx, u, token, stats, &meta); err != nil {
		return "", err
	}
	if meta.DefaultBranch == "" {
		return "", fmt.Errorf("repository metadata missing default branch")
	}
	return meta.DefaultBranch, nil
}

// fetchTree lists the full recursive tree at ref.
func (c *Crawler) fetchTree(ctx context.Context, owner, repo, ref, token string, stats *Stats) ([]treeEntry, bool, error) {
	var tree struct {
		Tree      []treeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	u := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.apiBase, owner, repo, url.PathEscape(ref))
	if err := c.getJSON(ctx, u, token, stats, &tree); err != nil {
		return nil, false, err
	}
	return tree.Tree, tree.Truncated, nil
}

// fetchBlob downloads one blob and decodes it from the transfer encoding.
func (c *Crawler) fetchBlob(ctx context.Context, owner, repo, sha, token string) (string, error) {
	var blob struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	u := fmt.Sprintf("%s/repos/%s/%s/git/blobs/%s", c.apiBase, owner, repo, sha)
	if err := c.getJSON(ctx, u, token, nil, &blob); err != nil {
		return "", err
	}

	switch blob.Encoding {
	case "base64":
		// GitHub wraps base64 payloads with newlines.
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decode blob %s: %w", sha, err)
		}
		return string(raw), nil
	case "utf-8", "":
		return blob.Content, nil
	default:
		return "", fmt.Errorf("unsupported blob encoding %q", blob.Encoding)
	}
}

// getJSON issues one GET and decodes the JSON body, classifying failures.
func (c *Crawler) getJSON(ctx context.Context, rawURL, token string, stats *Stats, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if stats != nil {
		stats.APIRequests++
	}
	crawlerMetrics.requests()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		c.logger.Debug("crawl.ratelimit", "remaining", remaining, "reset", resp.Header.Get("X-RateLimit-Reset"))
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return classifyStatus(resp.StatusCode, resp.Header, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// classifyStatus maps an HTTP failure to one of the sentinel error classes.
func classifyStatus(status int, headers http.Header, body string) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: status 401: %s", ErrAuth, body)
	case http.StatusForbidden:
		// GitHub reports rate-limit exhaustion as 403 with a zeroed header.
		if headers.Get("X-RateLimit-Remaining") == "0" {
			return fmt.Errorf("%w: status 403: %s", ErrRateLimited, body)
		}
		return fmt.Errorf("%w: status 403: %s", ErrAuth, body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: status 404: %s", ErrNotFound, body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: status 429: %s", ErrRateLimited, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, body)
	}
}

// parseRepoURL extracts owner and repository name from a GitHub URL.
// Accepts https://github.com/owner/repo[.git] and the bare owner/repo form.
func parseRepoURL(repoURL string) (owner, repo string, err error) {
	s := strings.TrimSuffix(strings.TrimSpace(repoURL), "/")
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "github.com/")

	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot parse repository URL %q: expected github.com/owner/repo", repoURL)
	}
	return parts[0], parts[1], nil
}
