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

package storage

import (
	"context"
	"errors"
)

// KindStructural tags vectors produced from the dependency graph.
const KindStructural = "structural"

// Backend is the interface that all vector index backends must implement.
type Backend interface {
	// EnsureCollection creates the collection with cosine distance when it
	// does not exist. An existing collection with a different dimension is
	// an error.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert writes points, replacing any with the same id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Point is one vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Payload is the metadata stored next to every vector.
type Payload struct {
	FilePath string `json:"file_path"`
	RepoURL  string `json:"repo_url"`
	Kind     string `json:"kind"`
}

var (
	// ErrCollectionNotFound is returned when writing to a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch is returned when a vector or collection size does
	// not match the existing collection.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrClosed is returned by a backend after Close.
	ErrClosed = errors.New("backend is closed")
)
