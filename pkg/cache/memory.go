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
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and ephemeral runs.
// Load and Save exchange deep copies, so a stored entry only changes
// through another Save.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Index
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Index)}
}

func (m *MemoryStore) Load(ctx context.Context, key string) (*Index, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return idx.clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, idx *Index) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = idx.clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
