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

package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	depvectest "github.com/kraklabs/depvec/internal/testing"
	"github.com/kraklabs/depvec/pkg/storage"
)

// flakyBackend fails the first failures Upsert calls with err, and every
// call from failFrom (1-based) on when it is set.
type flakyBackend struct {
	failures int
	failFrom int
	err      error
	upserts  [][]storage.Point
	calls    int
	ensured  int
}

func (f *flakyBackend) EnsureCollection(context.Context, string, int) error {
	f.ensured++
	return nil
}

func (f *flakyBackend) Upsert(_ context.Context, _ string, points []storage.Point) error {
	f.calls++
	if f.failFrom > 0 && f.calls >= f.failFrom {
		return f.err
	}
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.upserts = append(f.upserts, points)
	return nil
}

func (f *flakyBackend) Count(context.Context, string) (int, error) { return 0, nil }

func (f *flakyBackend) Close() error { return nil }

type sleepRecorder struct{ waits []time.Duration }

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func vectors(n, dim int) ([][]float32, []string) {
	vecs := make([][]float32, n)
	paths := make([]string, n)
	for i := range n {
		vecs[i] = make([]float32, dim)
		vecs[i][0] = float32(i)
		paths[i] = fmt.Sprintf("src/f%03d.go", i)
	}
	return vecs, paths
}

func TestPublisher_RetriesThenSucceeds(t *testing.T) {
	backend := &flakyBackend{failures: 2, err: errors.New("connection refused")}
	rec := &sleepRecorder{}
	p := NewPublisher(backend, Config{}, depvectest.DiscardLogger(), WithSleep(rec.sleep))

	vecs, paths := vectors(3, 4)
	res, err := p.Publish(context.Background(), vecs, paths, "https://example.com/r")
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, 3, res.Points)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 2, res.Retries)
}

func TestPublisher_ExhaustsAttempts(t *testing.T) {
	cause := errors.New("service unavailable")
	backend := &flakyBackend{failures: 10, err: cause}
	rec := &sleepRecorder{}
	p := NewPublisher(backend, Config{}, nil, WithSleep(rec.sleep))

	vecs, paths := vectors(2, 4)
	res, err := p.Publish(context.Background(), vecs, paths, "https://example.com/r")
	assert.Nil(t, res)

	var pe *PublishError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Attempts)
	assert.Equal(t, 0, pe.Batch)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits, "no wait after the last attempt")
}

func TestPublisher_PermanentErrorStopsEarly(t *testing.T) {
	backend := &flakyBackend{failures: 10, err: fmt.Errorf("upsert: %w", storage.ErrDimensionMismatch)}
	rec := &sleepRecorder{}
	p := NewPublisher(backend, Config{}, nil, WithSleep(rec.sleep))

	vecs, paths := vectors(1, 4)
	_, err := p.Publish(context.Background(), vecs, paths, "r")

	var pe *PublishError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Attempts)
	assert.Empty(t, rec.waits)
}

func TestPublisher_Batches(t *testing.T) {
	backend := &flakyBackend{}
	p := NewPublisher(backend, Config{BatchSize: 100}, nil)

	vecs, paths := vectors(250, 2)
	res, err := p.Publish(context.Background(), vecs, paths, "https://example.com/r")
	require.NoError(t, err)

	require.Len(t, backend.upserts, 3)
	assert.Len(t, backend.upserts[0], 100)
	assert.Len(t, backend.upserts[1], 100)
	assert.Len(t, backend.upserts[2], 50)
	assert.Equal(t, 250, res.Points)
	assert.Equal(t, 1, backend.ensured)

	first := backend.upserts[0][0]
	assert.Equal(t, PointID("https://example.com/r", "src/f000.go"), first.ID)
	assert.Equal(t, storage.Payload{FilePath: "src/f000.go", RepoURL: "https://example.com/r", Kind: "structural"}, first.Payload)
}

func TestPublisher_LaterBatchFailureReportsWritten(t *testing.T) {
	backend := &flakyBackend{failFrom: 3, err: errors.New("timeout")}
	p := NewPublisher(backend, Config{BatchSize: 2, MaxAttempts: 1}, nil)

	vecs, paths := vectors(5, 2)
	_, err := p.Publish(context.Background(), vecs, paths, "r")

	var pe *PublishError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Batch)
	assert.Equal(t, 4, pe.Written)
	assert.Len(t, backend.upserts, 2)
}

func TestPublisher_LengthMismatch(t *testing.T) {
	p := NewPublisher(&flakyBackend{}, Config{}, nil)
	_, err := p.Publish(context.Background(), make([][]float32, 2), []string{"a"}, "r")
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestPublisher_Empty(t *testing.T) {
	backend := &flakyBackend{}
	res, err := NewPublisher(backend, Config{}, nil).Publish(context.Background(), nil, nil, "r")
	require.NoError(t, err)
	assert.Zero(t, res.Points)
	assert.Zero(t, backend.ensured)
}

func TestPublisher_CancelledDuringBackoff(t *testing.T) {
	backend := &flakyBackend{failures: 5, err: errors.New("connection reset")}
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPublisher(backend, Config{}, nil, WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	vecs, paths := vectors(1, 2)
	_, err := p.Publish(ctx, vecs, paths, "r")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, backend.calls)
}

func TestPublisher_EmbeddedIndex(t *testing.T) {
	index := depvectest.SetupTestIndex(t)
	p := NewPublisher(index, Config{Collection: "test"}, nil)

	vecs, paths := vectors(3, 8)
	_, err := p.Publish(context.Background(), vecs, paths, "https://example.com/r")
	require.NoError(t, err)

	// Republishing the same repository overwrites, it does not duplicate.
	_, err = p.Publish(context.Background(), vecs, paths, "https://example.com/r")
	require.NoError(t, err)

	n, err := index.Count(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, ok, err := index.Get(context.Background(), "test", PointID("https://example.com/r", "src/f002.go"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vecs[2], got.Vector)
}

func TestBackoff(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(3))
	assert.Equal(t, 4*time.Second, cfg.Backoff(10))

	cfg = Config{InitialBackoff: 300 * time.Millisecond, MaxBackoff: time.Second}
	assert.Equal(t, 600*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, time.Second, cfg.Backoff(3))
}

func TestPointID(t *testing.T) {
	a := PointID("https://example.com/r", "a.go")
	assert.Equal(t, a, PointID("https://example.com/r", "a.go"))
	assert.NotEqual(t, a, PointID("https://example.com/r", "b.go"))
	assert.NotEqual(t, PointID("ab", "c"), PointID("a", "bc"), "separator keeps fields apart")
	assert.Len(t, a, 36)
}
