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

package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	depvectest "github.com/kraklabs/depvec/internal/testing"
	"github.com/kraklabs/depvec/pkg/embedding"
	"github.com/kraklabs/depvec/pkg/ingestion"
	"github.com/kraklabs/depvec/pkg/publish"
	"github.com/kraklabs/depvec/pkg/queue"
)

const repo = "https://github.com/org/repo"

type fakeFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, repoURL string) (*ingestion.Snapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.Snapshot{RepoURL: repoURL}, nil
}

type fakeBuilder struct {
	calls atomic.Int32
	graph *ingestion.Graph
}

func (b *fakeBuilder) Build(context.Context, *ingestion.Snapshot) (*ingestion.Graph, *ingestion.BuildReport, error) {
	b.calls.Add(1)
	g := b.graph
	if g == nil {
		g = &ingestion.Graph{
			Nodes: []string{"a.go", "b.go", "c.go"},
			Edges: []ingestion.Edge{{From: 0, To: 1}, {From: 1, To: 2}},
		}
	}
	return g, &ingestion.BuildReport{
		Files:       len(g.Nodes),
		ParseErrors: []ingestion.ParseError{{Path: "c.go", Err: ingestion.ErrSyntax}},
	}, nil
}

type fakeTrainer struct {
	calls atomic.Int32
	hook  func(ctx context.Context) error
}

func (tr *fakeTrainer) Train(ctx context.Context, g embedding.Graph) ([][]float32, error) {
	tr.calls.Add(1)
	if tr.hook != nil {
		if err := tr.hook(ctx); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, g.NodeCount())
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakePublisher struct {
	calls atomic.Int32
	panic string
	paths []string
}

func (p *fakePublisher) Publish(_ context.Context, vectors [][]float32, paths []string, _ string) (*publish.Result, error) {
	p.calls.Add(1)
	if p.panic != "" {
		panic(p.panic)
	}
	p.paths = paths
	return &publish.Result{Points: len(vectors), Batches: 1}, nil
}

type fakes struct {
	fetcher   *fakeFetcher
	builder   *fakeBuilder
	trainer   *fakeTrainer
	publisher *fakePublisher
}

func (f *fakes) stages() Stages {
	return Stages{Fetcher: f.fetcher, Builder: f.builder, Trainer: f.trainer, Publisher: f.publisher}
}

func (f *fakes) stageCalls() int32 {
	return f.fetcher.calls.Load() + f.builder.calls.Load() + f.trainer.calls.Load() + f.publisher.calls.Load()
}

func newFakes() *fakes {
	return &fakes{
		fetcher:   &fakeFetcher{},
		builder:   &fakeBuilder{},
		trainer:   &fakeTrainer{},
		publisher: &fakePublisher{},
	}
}

func newTestWorker(t *testing.T, store queue.Store, stages Stages, cfg Config) *Worker {
	t.Helper()
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = 10 * time.Millisecond
	}
	w, err := New(store, stages, cfg, depvectest.DiscardLogger())
	require.NoError(t, err)
	return w
}

func push(t *testing.T, store queue.Store, payload []byte) {
	t.Helper()
	_, err := store.PushCapped(context.Background(), payload, 0, 0)
	require.NoError(t, err)
}

func pushEnvelope(t *testing.T, store queue.Store, submitted time.Time, ttl time.Duration) {
	t.Helper()
	payload, err := queue.NewEnvelope("job-1", repo, submitted, ttl).Encode()
	require.NoError(t, err)
	push(t, store, payload)
}

func history(t *testing.T, store queue.Store) []queue.HistoryRecord {
	t.Helper()
	raw, err := store.History(context.Background(), 0)
	require.NoError(t, err)
	out := make([]queue.HistoryRecord, len(raw))
	for i, r := range raw {
		out[i], err = queue.UnmarshalHistoryRecord(r)
		require.NoError(t, err)
	}
	return out
}

func status(t *testing.T, store queue.Store, id string) queue.WorkerStatus {
	t.Helper()
	s, _, err := store.Status(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresStages(t *testing.T) {
	_, err := New(queue.NewMemoryStore(), Stages{}, Config{}, nil)
	assert.Error(t, err)

	_, err = New(nil, newFakes().stages(), Config{}, nil)
	assert.Error(t, err)
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	store := queue.NewMemoryStore()
	f := newFakes()
	w := newTestWorker(t, store, f.stages(), Config{})

	processed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, history(t, store))
	assert.Zero(t, f.stageCalls())
}

func TestRunOnce_Complete(t *testing.T) {
	store := queue.NewMemoryStore()
	f := newFakes()
	w := newTestWorker(t, store, f.stages(), Config{})

	var seen queue.WorkerStatus
	f.trainer.hook = func(context.Context) error {
		seen = status(t, store, "")
		return nil
	}
	pushEnvelope(t, store, time.Now(), time.Hour)

	processed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	assert.Equal(t, queue.Processing(repo), seen, "status is Processing while the job runs")
	assert.Equal(t, queue.StatusIdle, status(t, store, ""))
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, f.publisher.paths)

	recs := history(t, store)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, queue.OutcomeComplete, rec.Status)
	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, repo, rec.RepoURL)
	require.NotNil(t, rec.FilesProcessed)
	assert.Equal(t, 3, *rec.FilesProcessed)
	require.NotNil(t, rec.EmbeddingsGenerated)
	assert.Equal(t, 3, *rec.EmbeddingsGenerated)
	require.NotNil(t, rec.ParseErrors)
	assert.Equal(t, 1, *rec.ParseErrors)
	require.NotNil(t, rec.DurationSeconds)
	assert.GreaterOrEqual(t, *rec.DurationSeconds, 0.0)
}

func TestRunOnce_StaleTaskSkipped(t *testing.T) {
	store := queue.NewMemoryStore()
	f := newFakes()
	w := newTestWorker(t, store, f.stages(), Config{})

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	pushEnvelope(t, store, now.Add(-25*time.Hour), 24*time.Hour)

	processed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	assert.Zero(t, f.stageCalls(), "a stale task never reaches the pipeline")
	assert.Equal(t, queue.StatusIdle, status(t, store, ""))

	recs := history(t, store)
	require.Len(t, recs, 1)
	assert.Equal(t, queue.OutcomeSkipped, recs[0].Status)
	assert.Equal(t, queue.ReasonTTLExceeded, recs[0].Reason)
	require.NotNil(t, recs[0].AgeSeconds)
	assert.InDelta(t, (25 * time.Hour).Seconds(), *recs[0].AgeSeconds, 1)
}

func TestRunOnce_LegacyEnvelope(t *testing.T) {
	for _, payload := range []string{repo, `"` + repo + `"`} {
		t.Run(payload, func(t *testing.T) {
			store := queue.NewMemoryStore()
			f := newFakes()
			w := newTestWorker(t, store, f.stages(), Config{})
			push(t, store, []byte(payload))

			_, err := w.RunOnce(context.Background())
			require.NoError(t, err)

			recs := history(t, store)
			require.Len(t, recs, 1)
			assert.Equal(t, queue.OutcomeComplete, recs[0].Status)
			assert.Equal(t, repo, recs[0].RepoURL)
			assert.Empty(t, recs[0].JobID)
		})
	}
}

func TestRunOnce_MalformedEnvelope(t *testing.T) {
	store := queue.NewMemoryStore()
	f := newFakes()
	w := newTestWorker(t, store, f.stages(), Config{})
	push(t, store, []byte{})

	processed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	assert.Zero(t, f.stageCalls())
	assert.Equal(t, queue.WorkerStatus("Error: malformed task envelope"), status(t, store, ""))
	recs := history(t, store)
	require.Len(t, recs, 1)
	assert.Equal(t, queue.OutcomeFailed, recs[0].Status)
	assert.Equal(t, "malformed task envelope", recs[0].Error)
}

func TestRunOnce_NoSourceFiles(t *testing.T) {
	store := queue.NewMemoryStore()
	f := newFakes()
	f.builder.graph = &ingestion.Graph{}
	w := newTestWorker(t, store, f.stages(), Config{})
	pushEnvelope(t, store, time.Now(), time.Hour)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, f.trainer.calls.Load())
	recs := history(t, store)
	require.Len(t, recs, 1)
	assert.Equal(t, queue.OutcomeFailed, recs[0].Status)
	assert.Equal(t, "no supported source files", recs[0].Error)
	assert.Equal(t, queue.Errored("no supported source files"), status(t, store, ""))
}

func TestRunOnce_FetchFailure(t *testing.T) {
	store := queue.NewMemoryStore()
	f := newFakes()
	f.fetcher.err = &ingestion.FetchError{RepoURL: repo, Op: "clone", Err: errors.New("exit status 128")}
	w := newTestWorker(t, store, f.stages(), Config{ID: "w1"})
	pushEnvelope(t, store, time.Now(), time.Hour)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, f.builder.calls.Load())
	st := status(t, store, "w1")
	assert.True(t, st.IsError(), "status %q", st)
	assert.Contains(t, st.String(), "clone")

	recs := history(t, store)
	require.Len(t, recs, 1)
	assert.Equal(t, queue.OutcomeFailed, recs[0].Status)
	assert.Contains(t, recs[0].Error, "exit status 128")
	require.NotNil(t, recs[0].DurationSeconds)
}

func TestRunOnce_ErrorStatusClearedByNextJob(t *testing.T) {
	store := queue.NewMemoryStore()
	f := newFakes()
	fail := true
	f.trainer.hook = func(context.Context) error {
		if fail {
			return errors.New("diverged")
		}
		return nil
	}
	w := newTestWorker(t, store, f.stages(), Config{})

	pushEnvelope(t, store, time.Now(), time.Hour)
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.Errored("diverged"), status(t, store, ""))

	fail = false
	pushEnvelope(t, store, time.Now(), time.Hour)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.StatusIdle, status(t, store, ""))

	recs := history(t, store)
	require.Len(t, recs, 2)
	assert.Equal(t, queue.OutcomeComplete, recs[0].Status)
	assert.Equal(t, queue.OutcomeFailed, recs[1].Status)
}

func TestRunOnce_HistoryKeepsLast100(t *testing.T) {
	store := queue.NewMemoryStore()
	w := newTestWorker(t, store, newFakes().stages(), Config{})

	for i := 1; i <= 101; i++ {
		payload, err := queue.NewEnvelope(fmt.Sprintf("job-%d", i), repo, time.Now(), time.Hour).Encode()
		require.NoError(t, err)
		push(t, store, payload)
		_, err = w.RunOnce(context.Background())
		require.NoError(t, err)
	}
	recs := history(t, store)
	require.Len(t, recs, queue.HistoryLimit)
	assert.Equal(t, "job-101", recs[0].JobID)
	assert.Equal(t, "job-2", recs[len(recs)-1].JobID)
}

// realStages wires the production fetcher and builder against a local git
// repository, so cleanup of the checkout can be observed.
func realStages(t *testing.T, workDir string, f *fakes) Stages {
	t.Helper()
	logger := depvectest.DiscardLogger()
	return Stages{
		Fetcher:   ingestion.NewFetcher(ingestion.FetcherConfig{WorkDir: workDir}, logger),
		Builder:   ingestion.NewGraphBuilder(nil, 2, logger),
		Trainer:   f.trainer,
		Publisher: f.publisher,
	}
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "checkout must be removed")
}

func TestRunOnce_CleanupOnStageFailure(t *testing.T) {
	depvectest.RequireGit(t)
	repoURL := depvectest.InitGitRepo(t, depvectest.MixedRepo())

	tests := []struct {
		name    string
		setup   func(f *fakes)
		wantErr string
	}{
		{"train error", func(f *fakes) {
			f.trainer.hook = func(context.Context) error { return errors.New("loss diverged") }
		}, "loss diverged"},
		{"publish panic", func(f *fakes) { f.publisher.panic = "boom" }, "panic: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := queue.NewMemoryStore()
			workDir := t.TempDir()
			f := newFakes()
			tt.setup(f)
			w := newTestWorker(t, store, realStages(t, workDir, f), Config{})

			payload, err := queue.NewEnvelope("j", repoURL, time.Now(), time.Hour).Encode()
			require.NoError(t, err)
			push(t, store, payload)

			_, err = w.RunOnce(context.Background())
			require.NoError(t, err)

			recs := history(t, store)
			require.Len(t, recs, 1)
			assert.Equal(t, queue.OutcomeFailed, recs[0].Status)
			assert.Contains(t, recs[0].Error, tt.wantErr)
			assert.True(t, status(t, store, "").IsError())
			requireEmptyDir(t, workDir)
		})
	}
}

func TestRun_ShutdownSetsOffline(t *testing.T) {
	store := queue.NewMemoryStore()
	w := newTestWorker(t, store, newFakes().stages(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return status(t, store, "") == queue.StatusIdle
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, queue.StatusOffline, status(t, store, ""))
}

func TestRun_FinishesJobInFlight(t *testing.T) {
	store := queue.NewMemoryStore()
	f := newFakes()
	started := make(chan struct{})
	release := make(chan struct{})
	f.trainer.hook = func(ctx context.Context) error {
		close(started)
		<-release
		return ctx.Err()
	}
	w := newTestWorker(t, store, f.stages(), Config{})
	pushEnvelope(t, store, time.Now(), time.Hour)
	pushEnvelope(t, store, time.Now(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	<-started
	cancel()
	close(release)
	require.NoError(t, <-done)

	recs := history(t, store)
	require.Len(t, recs, 1, "no further pops after the first interrupt")
	assert.Equal(t, queue.OutcomeComplete, recs[0].Status)

	depth, err := store.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
	assert.Equal(t, queue.StatusOffline, status(t, store, ""))
}

func TestRun_AbortCancelsJob(t *testing.T) {
	depvectest.RequireGit(t)
	repoURL := depvectest.InitGitRepo(t, depvectest.MixedRepo())

	store := queue.NewMemoryStore()
	workDir := t.TempDir()
	f := newFakes()
	started := make(chan struct{})
	f.trainer.hook = func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	w := newTestWorker(t, store, realStages(t, workDir, f), Config{})
	payload, err := queue.NewEnvelope("j", repoURL, time.Now(), time.Hour).Encode()
	require.NoError(t, err)
	push(t, store, payload)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	<-started
	cancel()
	w.Abort()
	require.NoError(t, <-done)

	recs := history(t, store)
	require.Len(t, recs, 1)
	assert.Equal(t, queue.OutcomeFailed, recs[0].Status)
	assert.Contains(t, recs[0].Error, context.Canceled.Error())
	requireEmptyDir(t, workDir)
	assert.Equal(t, queue.StatusOffline, status(t, store, ""))
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	store := queue.NewMemoryStore()
	w := newTestWorker(t, store, newFakes().stages(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return status(t, store, "") == queue.StatusIdle
	}, time.Second, 5*time.Millisecond)

	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)

	cancel()
	wg.Wait()
}

func TestEndToEnd(t *testing.T) {
	depvectest.RequireGit(t)
	repoURL := depvectest.InitGitRepo(t, depvectest.MixedRepo())

	store, _ := depvectest.SetupRedis(t)
	index := depvectest.SetupTestIndex(t)
	logger := depvectest.DiscardLogger()
	workDir := t.TempDir()

	stages := Stages{
		Fetcher: ingestion.NewFetcher(ingestion.FetcherConfig{WorkDir: workDir}, logger),
		Builder: ingestion.NewGraphBuilder(nil, 4, logger),
		Trainer: embedding.NewTrainer(embedding.Config{
			Dim:          8,
			WalkLength:   6,
			Window:       2,
			WalksPerNode: 2,
			Epochs:       10,
		}, logger),
		Publisher: publish.NewPublisher(index, publish.Config{}, logger),
	}
	w := newTestWorker(t, store, stages, Config{ID: "e2e"})

	payload, err := queue.NewEnvelope("job-e2e", repoURL, time.Now(), time.Hour).Encode()
	require.NoError(t, err)
	push(t, store, payload)

	processed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	recs := history(t, store)
	require.Len(t, recs, 1)
	require.Equal(t, queue.OutcomeComplete, recs[0].Status, "error: %s", recs[0].Error)
	assert.Equal(t, 10, *recs[0].FilesProcessed)
	assert.Equal(t, 10, *recs[0].EmbeddingsGenerated)
	assert.Equal(t, queue.StatusIdle, status(t, store, "e2e"))

	n, err := index.Count(context.Background(), publish.DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	point, ok, err := index.Get(context.Background(), publish.DefaultCollection, publish.PointID(repoURL, "c/main.c"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, point.Vector, 8)
	assert.Equal(t, "c/main.c", point.Payload.FilePath)

	requireEmptyDir(t, workDir)
}
