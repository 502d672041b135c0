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

// Package storage provides vector index backends for depvec.
//
// The Backend interface lets the publisher write embeddings without knowing
// where they end up. Two implementations are provided:
//
//   - QdrantBackend: a Qdrant server reached over its REST API
//   - EmbeddedBackend: a local SQLite file, for development and tests
//
// # Quick Start
//
//	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
//	    Path: "/var/lib/depvec/index.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	if err := backend.EnsureCollection(ctx, "depvec_structural", 64); err != nil {
//	    log.Fatal(err)
//	}
//	err = backend.Upsert(ctx, "depvec_structural", []storage.Point{{
//	    ID:     "5a1c…",
//	    Vector: vec,
//	    Payload: storage.Payload{
//	        FilePath: "cmd/app/main.go",
//	        RepoURL:  "https://github.com/org/repo",
//	        Kind:     storage.KindStructural,
//	    },
//	}})
//
// # Collections
//
// EnsureCollection is idempotent. Collections use cosine distance and a
// fixed dimension; writing a vector of another size fails with
// ErrDimensionMismatch.
//
// # Retries
//
// Backends do not retry. Callers use Retryable to decide whether an error
// is worth another attempt.
//
// # Thread Safety
//
// Both backends are safe for concurrent use. EmbeddedBackend serializes
// writes behind a lock and a single database connection.
package storage
