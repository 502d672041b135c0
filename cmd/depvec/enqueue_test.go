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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	depvecerrors "github.com/kraklabs/depvec/internal/errors"
	depvectest "github.com/kraklabs/depvec/internal/testing"
	"github.com/kraklabs/depvec/pkg/dispatch"
	"github.com/kraklabs/depvec/pkg/queue"
)

const adminToken = "cli-test-token-0123456789"

func dispatcherServer(t *testing.T, capacity int) (*httptest.Server, *queue.RedisStore) {
	t.Helper()
	store, _ := depvectest.SetupRedis(t)
	d := dispatch.New(store, dispatch.Config{AdminToken: adminToken, QueueCap: capacity}, depvectest.DiscardLogger())
	srv := httptest.NewServer(dispatch.NewHandler(d, store, depvectest.DiscardLogger()))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestPostEnqueue(t *testing.T) {
	srv, store := dispatcherServer(t, 1)
	ctx := context.Background()

	res, err := postEnqueue(ctx, srv.Client(), srv.URL+"/", adminToken, "https://github.com/org/repo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.QueuePosition)
	assert.NotEmpty(t, res.JobID)

	raw, err := store.Pop(ctx, 0)
	require.NoError(t, err)
	env, err := queue.DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/org/repo", env.RepoURL, "escaped path is decoded by the dispatcher")
}

func TestPostEnqueue_ErrorMapping(t *testing.T) {
	srv, _ := dispatcherServer(t, 1)
	ctx := context.Background()

	_, err := postEnqueue(ctx, srv.Client(), srv.URL, "wrong", "https://github.com/org/repo")
	assert.ErrorIs(t, err, dispatch.ErrUnauthorized)

	_, err = postEnqueue(ctx, srv.Client(), srv.URL, adminToken, "https://github.com/org/repo;rm")
	assert.ErrorIs(t, err, dispatch.ErrInvalidRepoURL)

	_, err = postEnqueue(ctx, srv.Client(), srv.URL, adminToken, "https://github.com/org/a")
	require.NoError(t, err)
	_, err = postEnqueue(ctx, srv.Client(), srv.URL, adminToken, "https://github.com/org/b")
	assert.ErrorIs(t, err, dispatch.ErrQueueFull)
}

func TestPostEnqueue_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := postEnqueue(context.Background(), http.DefaultClient, url, adminToken, "https://github.com/org/repo")
	assert.ErrorIs(t, err, dispatch.ErrQueueUnavailable)
}

func TestEnqueueError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{dispatch.ErrUnauthorized, depvecerrors.ExitPermission},
		{dispatch.ErrInvalidRepoURL, depvecerrors.ExitInput},
		{dispatch.ErrQueueFull, depvecerrors.ExitStore},
		{dispatch.ErrQueueUnavailable, depvecerrors.ExitNetwork},
		{errors.New("other"), depvecerrors.ExitNetwork},
	}
	for _, tt := range tests {
		if got := enqueueError(tt.err).ExitCode; got != tt.code {
			t.Errorf("enqueueError(%v).ExitCode = %d, want %d", tt.err, got, tt.code)
		}
	}
}
