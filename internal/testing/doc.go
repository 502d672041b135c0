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

// Package testing provides test helpers for depvec packages.
//
// # Quick Start
//
// Use SetupRedis to get a queue store backed by an in-process Redis:
//
//	func TestEnqueue(t *testing.T) {
//	    store, mr := depvectest.SetupRedis(t)
//
//	    _, err := store.PushCapped(ctx, []byte("payload"), 10, time.Hour)
//	    require.NoError(t, err)
//	    items, _ := mr.List(store.Keys().Queue)
//	    require.Len(t, items, 1)
//	}
//
// # Repository Fixtures
//
// Fetcher and pipeline tests work against real git repositories built on
// disk:
//   - WriteTree: write a map of relative paths to a directory
//   - InitGitRepo: commit a tree and return its file:// URL
//   - MixedRepo: a small Go/Python/TypeScript/C tree with resolvable imports
//
// InitGitRepo skips the calling test when git is not installed.
//
// # Vector Index
//
// SetupTestIndex opens an embedded index in a temporary directory so that
// publisher tests can read back what they wrote.
package testing
