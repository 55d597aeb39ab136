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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk project configuration at .repodoc/project.yaml.
//
// Every field has a working default so `repodoc generate --repo URL` runs
// without a config file. The file exists to pin repository, model, and
// filter settings for repeated runs.
type Config struct {
	// Repo identifies what to crawl.
	Repo RepoConfig `yaml:"repo"`

	// LLM selects the completion provider.
	LLM LLMConfig `yaml:"llm"`

	// Pipeline tunes generation.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Output controls where documentation is written.
	Output OutputConfig `yaml:"output"`

	// Cache controls incremental regeneration storage.
	Cache CacheConfig `yaml:"cache"`
}

// RepoConfig identifies the repository and its crawl filters.
type RepoConfig struct {
	// URL is the GitHub repository, e.g. https://github.com/owner/repo
	// or the bare owner/repo form.
	URL string `yaml:"url"`

	// Ref is a branch, tag, or commit SHA. Empty means the default branch.
	Ref string `yaml:"ref,omitempty"`

	// Include admits only matching paths when non-empty.
	Include []string `yaml:"include,omitempty"`

	// Exclude rejects matching paths. Exclusion wins over inclusion.
	Exclude []string `yaml:"exclude,omitempty"`

	// MaxFileSize skips files larger than this many bytes (0 = no limit).
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`
}

// LLMConfig selects the completion provider.
//
// API keys are never stored in the file; they come from the provider's
// standard environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY).
type LLMConfig struct {
	// Provider is one of: ollama, openai, anthropic, mock.
	Provider string `yaml:"provider"`

	// Model is the model identifier, e.g. llama3.1 or gpt-4o-mini.
	Model string `yaml:"model,omitempty"`

	// BaseURL overrides the provider endpoint (self-hosted gateways).
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxTokens caps each completion (0 = provider default).
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// PipelineConfig tunes the generation stages.
type PipelineConfig struct {
	// MaxAbstractions caps how many subsystems become chapters.
	MaxAbstractions int `yaml:"max_abstractions,omitempty"`

	// ContextTokens budgets the repository context for analysis stages.
	ContextTokens int `yaml:"context_tokens,omitempty"`

	// ChapterContextTokens budgets the narrower per-chapter context.
	ChapterContextTokens int `yaml:"chapter_context_tokens,omitempty"`
}

// OutputConfig controls where documentation is written.
type OutputConfig struct {
	// Dir is the output directory for the generated markdown files.
	Dir string `yaml:"dir"`
}

// CacheConfig controls incremental regeneration storage.
type CacheConfig struct {
	// Dir is the cache directory. Empty means ~/.repodoc/cache.
	Dir string `yaml:"dir,omitempty"`

	// Disabled turns caching off entirely; every run is a full run.
	Disabled bool `yaml:"disabled,omitempty"`
}

// DefaultConfig returns a configuration with working defaults:
// Ollama as the provider and ./docs as the output directory.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1",
		},
		Repo: RepoConfig{
			Exclude: []string{
				"vendor/**", "node_modules/**", "dist/**", "build/**",
				"*.min.js", "*.lock", "*.sum",
				"*.png", "*.jpg", "*.gif", "*.ico", "*.pdf",
			},
			MaxFileSize: 200 * 1024,
		},
		Output: OutputConfig{Dir: "./docs"},
	}
}

// ConfigPath returns the configuration file path for a project root.
func ConfigPath(root string) string {
	return filepath.Join(root, ".repodoc", "project.yaml")
}

// DefaultCacheDir returns the per-user cache directory.
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".repodoc", "cache")
	}
	return filepath.Join(home, ".repodoc", "cache")
}

// LoadConfig reads the configuration file at path. An empty path falls back
// to ./.repodoc/project.yaml. A missing file is not an error; defaults are
// returned so flag-only invocations work.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine working directory: %w", err)
		}
		path = ConfigPath(cwd)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
