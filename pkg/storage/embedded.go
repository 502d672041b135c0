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
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// EmbeddedBackend implements Backend on a local SQLite file. It stores
// vectors without an ANN index and is meant for development, single-host
// deployments and tests.
type EmbeddedBackend struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ Backend = (*EmbeddedBackend)(nil)

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything in
	// memory. Defaults to depvec-index.db in the working directory.
	Path string
}

const embeddedSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	dim        INTEGER NOT NULL,
	distance   TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS points (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	vector     BLOB NOT NULL,
	file_path  TEXT NOT NULL,
	repo_url   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_points_repo ON points (collection, repo_url);
`

// NewEmbeddedBackend opens (or creates) the database and its schema.
func NewEmbeddedBackend(config EmbeddedConfig) (*EmbeddedBackend, error) {
	if config.Path == "" {
		config.Path = "depvec-index.db"
	}
	if config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	// A single connection avoids "database is locked" under concurrent writers
	// and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", embeddedSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init index: %w", err)
		}
	}
	return &EmbeddedBackend{db: db}, nil
}

// EnsureCollection implements Backend.
func (b *EmbeddedBackend) EnsureCollection(ctx context.Context, name string, dim int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if dim <= 0 {
		return fmt.Errorf("collection %s: invalid dimension %d", name, dim)
	}

	_, err := b.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, dim, distance, created_at) VALUES (?, ?, 'cosine', ?)`,
		name, dim, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}

	existing, err := b.collectionDim(ctx, name)
	if err != nil {
		return err
	}
	if existing != dim {
		return fmt.Errorf("collection %s has dimension %d, want %d: %w", name, existing, dim, ErrDimensionMismatch)
	}
	return nil
}

// Upsert implements Backend. All points are written in one transaction.
func (b *EmbeddedBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	dim, err := b.collectionDim(ctx, collection)
	if err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, vector, file_path, repo_url, kind, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			vector = excluded.vector,
			file_path = excluded.file_path,
			repo_url = excluded.repo_url,
			kind = excluded.kind,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("point %s has %d components, want %d: %w", p.ID, len(p.Vector), dim, ErrDimensionMismatch)
		}
		if _, err := stmt.ExecContext(ctx, collection, p.ID, encodeFloat32s(p.Vector),
			p.Payload.FilePath, p.Payload.RepoURL, p.Payload.Kind, now); err != nil {
			return fmt.Errorf("upsert point %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Count implements Backend.
func (b *EmbeddedBackend) Count(ctx context.Context, collection string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	if _, err := b.collectionDim(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Get returns one point. ok is false when the id is unknown.
func (b *EmbeddedBackend) Get(ctx context.Context, collection, id string) (p Point, ok bool, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Point{}, false, ErrClosed
	}

	var blob []byte
	row := b.db.QueryRowContext(ctx,
		`SELECT id, vector, file_path, repo_url, kind FROM points WHERE collection = ? AND id = ?`,
		collection, id)
	err = row.Scan(&p.ID, &blob, &p.Payload.FilePath, &p.Payload.RepoURL, &p.Payload.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return Point{}, false, nil
	}
	if err != nil {
		return Point{}, false, fmt.Errorf("get point %s: %w", id, err)
	}
	if p.Vector, err = decodeFloat32s(blob); err != nil {
		return Point{}, false, fmt.Errorf("decode point %s: %w", id, err)
	}
	return p, true, nil
}

// Close closes the database.
func (b *EmbeddedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func (b *EmbeddedBackend) collectionDim(ctx context.Context, name string) (int, error) {
	var dim int
	err := b.db.QueryRowContext(ctx, `SELECT dim FROM collections WHERE name = ?`, name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read collection %s: %w", name, err)
	}
	return dim, nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
