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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "./docs", cfg.Output.Dir)
	assert.NotEmpty(t, cfg.Repo.Exclude)
}

func TestSaveLoadConfig_RoundTrip(t *testing.T) {
	path := ConfigPath(t.TempDir())

	cfg := DefaultConfig()
	cfg.Repo.URL = "https://github.com/acme/widget"
	cfg.Repo.Ref = "v2"
	cfg.Repo.Include = []string{"**/*.go"}
	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.Pipeline.MaxAbstractions = 6
	cfg.Cache.Dir = "/tmp/repodoc-cache"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	partial := "repo:\n  url: acme/widget\nllm:\n  model: llama3.2\n"
	require.NoError(t, os.WriteFile(path, []byte(partial), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "acme/widget", cfg.Repo.URL)
	assert.Equal(t, "llama3.2", cfg.LLM.Model)
	// Untouched sections keep their defaults.
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "./docs", cfg.Output.Dir)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repo: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot parse config")
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", ".repodoc", "project.yaml"), ConfigPath("/work"))
}
