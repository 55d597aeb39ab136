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
	"errors"
)

// ErrNotFound is returned by Store.Load when no entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

// Store persists cache indexes by normalized repository key. Implementations
// must be safe for concurrent use. Concurrent writers for the same key are
// not coordinated here; callers that need single-flight semantics serialize
// per key themselves.
type Store interface {
	// Load returns the index for key, or ErrNotFound.
	Load(ctx context.Context, key string) (*Index, error)

	// Save persists the index under key, replacing any previous entry.
	Save(ctx context.Context, key string, idx *Index) error

	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Keys lists all stored keys.
	Keys(ctx context.Context) ([]string, error)
}
