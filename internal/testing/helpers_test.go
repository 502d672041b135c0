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

package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRedis(t *testing.T) {
	store, mr := SetupRedis(t)
	require.NotNil(t, store)

	ctx := context.Background()
	pos, err := store.PushCapped(ctx, []byte("a"), 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)

	items, err := mr.List(store.Keys().Queue)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, items)
}

func TestWriteTree(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string]string{
		"a/b/c.go": "package c\n",
		"top.txt":  "x",
	})

	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.go"))
	require.NoError(t, err)
	assert.Equal(t, "package c\n", string(data))
	assert.FileExists(t, filepath.Join(dir, "top.txt"))
}

func TestInitGitRepo(t *testing.T) {
	url := InitGitRepo(t, map[string]string{"main.go": "package main\n"})

	assert.Contains(t, url, "file://")
	dir := url[len("file://"):]
	assert.DirExists(t, filepath.Join(dir, ".git"))
}

func TestMixedRepoHasGoModule(t *testing.T) {
	files := MixedRepo()
	assert.Contains(t, files["go.mod"], "module example.com/mixed")
	assert.Contains(t, files, "node_modules/dep/index.js")
}
