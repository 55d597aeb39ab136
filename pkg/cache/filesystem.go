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

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore keeps one JSON file per repository under a root
// directory. Writes are atomic (temp file + rename) so a crashed run never
// leaves a torn index behind.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a store rooted at dir.
func NewFilesystemStore(dir string) *FilesystemStore {
	return &FilesystemStore{root: dir}
}

func (fs *FilesystemStore) path(key string) string {
	return filepath.Join(fs.root, keyFilename(key)+".json")
}

// keyFilename flattens a normalized repo key into a safe filename.
func keyFilename(key string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", "\\", "_")
	return replacer.Replace(key)
}

// Load reads and parses the index for key.
func (fs *FilesystemStore) Load(ctx context.Context, key string) (*Index, error) {
	_ = ctx
	data, err := os.ReadFile(fs.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cache index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse cache index: %w", err)
	}
	if idx.FileHashes == nil {
		idx.FileHashes = make(map[string]string)
	}
	return &idx, nil
}

// Save writes the index atomically.
func (fs *FilesystemStore) Save(ctx context.Context, key string, idx *Index) error {
	_ = ctx
	if err := os.MkdirAll(fs.root, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}

	path := fs.path(key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write cache temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename cache index: %w", err)
	}
	return nil
}

// Delete removes the index file for key.
func (fs *FilesystemStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	if err := os.Remove(fs.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache index: %w", err)
	}
	return nil
}

// Keys lists the keys of all stored indexes.
func (fs *FilesystemStore) Keys(ctx context.Context) ([]string, error) {
	_ = ctx
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache dir: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}
