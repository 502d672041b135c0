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

package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/depvec/internal/config"
	"github.com/kraklabs/depvec/pkg/queue"
	"github.com/kraklabs/depvec/pkg/storage"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf, false)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	logger = NewLogger(config.LogConfig{Level: "error", Format: "text"}, &buf, true)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug), "debug flag wins")
	logger.Debug("dbg")
	assert.True(t, strings.Contains(buf.String(), "msg=dbg"))
}

func TestOpenStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default().Redis
	cfg.Addr = mr.Addr()
	cfg.QueueKey = "custom:queue"

	store, err := OpenStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.PushCapped(context.Background(), []byte("x"), 1, 0)
	require.NoError(t, err)
	items, err := mr.List("custom:queue")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, items)
}

func TestOpenStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default().Redis
	cfg.Addr = mr.Addr()
	mr.Close()

	_, err := OpenStore(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOpenIndex(t *testing.T) {
	cfg := config.Default().Index

	cfg.Backend = "embedded"
	cfg.Path = filepath.Join(t.TempDir(), "nested", "index.db")
	b, err := OpenIndex(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.EmbeddedBackend{}, b)
	require.NoError(t, b.Close())

	cfg.Backend = "qdrant"
	cfg.URL = "http://localhost:6333"
	b, err = OpenIndex(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.QdrantBackend{}, b)

	cfg.Backend = "pinecone"
	_, err = OpenIndex(cfg, nil)
	assert.Error(t, err)
}

func TestNewWorker(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Backend = "embedded"
	cfg.Index.Path = filepath.Join(t.TempDir(), "index.db")

	index, err := OpenIndex(cfg.Index, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	cfg.Worker.ID = "w1"
	cfg.Worker.StoreTimeout = 750 * time.Millisecond
	w, err := NewWorker(cfg, queue.NewMemoryStore(), index, nil)
	require.NoError(t, err)
	assert.Equal(t, "w1", w.Config().ID)
	assert.Equal(t, 750*time.Millisecond, w.Config().StoreTimeout)
	assert.Equal(t, cfg.Worker.IdleInterval, w.Config().IdleInterval)

	p := NewPipeline(cfg, index, nil)
	assert.Equal(t, cfg.Trainer.Dim, p.Trainer.Dim())
	assert.Equal(t, cfg.Index.Collection, p.Publisher.Config().Collection)
}

func TestNewDispatcher(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatcher.QueueCap = 3
	d := NewDispatcher(cfg, queue.NewMemoryStore(), nil)
	assert.Equal(t, 3, d.Capacity())
}

func TestInitProject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.DefaultFileName)
	cfg := config.Default()
	cfg.Index.Backend = "embedded"
	cfg.Index.Path = filepath.Join(dir, "data", "index.db")

	info, err := InitProject(path, cfg, false, nil)
	require.NoError(t, err)
	assert.True(t, info.Created)
	assert.Equal(t, cfg.Index.Path, info.IndexPath)
	assert.FileExists(t, path)
	assert.FileExists(t, cfg.Index.Path)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "embedded", loaded.Index.Backend)

	_, err = InitProject(path, cfg, false, nil)
	assert.True(t, errors.Is(err, ErrConfigExists))

	info, err = InitProject(path, cfg, true, nil)
	require.NoError(t, err)
	assert.True(t, info.Created)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestInitProject_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatcher.QueueCap = 0
	_, err := InitProject(filepath.Join(t.TempDir(), "x.yaml"), cfg, false, nil)
	var verr *config.ValidationError
	assert.ErrorAs(t, err, &verr)
}
