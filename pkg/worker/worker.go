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
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kraklabs/depvec/internal/contract"
	"github.com/kraklabs/depvec/pkg/embedding"
	"github.com/kraklabs/depvec/pkg/ingestion"
	"github.com/kraklabs/depvec/pkg/publish"
	"github.com/kraklabs/depvec/pkg/queue"
)

// DefaultIdleInterval is the sleep between polls of an empty queue.
const DefaultIdleInterval = 2 * time.Second

// ErrNoSourceFiles fails a job whose snapshot has no supported source file.
var ErrNoSourceFiles = errors.New("no supported source files")

// Fetcher produces the snapshot a job works on.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL string) (*ingestion.Snapshot, error)
}

// Builder turns a snapshot into a dependency graph.
type Builder interface {
	Build(ctx context.Context, snap *ingestion.Snapshot) (*ingestion.Graph, *ingestion.BuildReport, error)
}

// Trainer learns one vector per graph node.
type Trainer interface {
	Train(ctx context.Context, g embedding.Graph) ([][]float32, error)
}

// Publisher writes vectors to the index.
type Publisher interface {
	Publish(ctx context.Context, vectors [][]float32, paths []string, repoURL string) (*publish.Result, error)
}

// Stages are the pipeline steps run for every job.
type Stages struct {
	Fetcher   Fetcher
	Builder   Builder
	Trainer   Trainer
	Publisher Publisher
}

// Config configures a Worker.
type Config struct {
	// ID namespaces the status key. Empty uses the shared key.
	ID string

	// IdleInterval is slept after an empty poll or a pop error.
	IdleInterval time.Duration

	// PopTimeout > 0 makes each poll a blocking pop of that length.
	PopTimeout time.Duration

	// StoreTimeout bounds status and history writes.
	StoreTimeout time.Duration
}

// StageError tags a pipeline failure with the stage that produced it. Its
// message is the underlying error's, which already names the operation.
type StageError struct {
	Stage string // "fetch", "build", "train" or "publish"
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Worker is the poll loop. It is not safe to call Run or RunOnce from more
// than one goroutine at a time.
type Worker struct {
	store  queue.Store
	stages Stages
	cfg    Config
	logger *slog.Logger

	jobCtx context.Context
	abort  context.CancelFunc

	mu      sync.Mutex
	running bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a Worker. Every stage is required. A nil logger uses
// slog.Default().
func New(store queue.Store, stages Stages, cfg Config, logger *slog.Logger) (*Worker, error) {
	if store == nil {
		return nil, errors.New("worker: nil store")
	}
	if stages.Fetcher == nil || stages.Builder == nil || stages.Trainer == nil || stages.Publisher == nil {
		return nil, errors.New("worker: every pipeline stage is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	jobCtx, abort := context.WithCancel(context.Background())
	return &Worker{
		store:  store,
		stages: stages,
		cfg:    cfg,
		logger: logger.With("worker_id", cfg.ID),
		jobCtx: jobCtx,
		abort:  abort,
		now:    time.Now,
		sleep:  sleepCtx,
	}, nil
}

// Config returns the effective configuration.
func (w *Worker) Config() Config { return w.cfg }

// Abort cancels the job in flight, if any, and every later one.
func (w *Worker) Abort() { w.abort() }

// Run polls until ctx is cancelled. A job that started before the
// cancellation runs to completion unless Abort is called. The status is
// Offline when Run returns.
func (w *Worker) Run(ctx context.Context) error {
	if !w.begin() {
		return errors.New("worker: already running")
	}
	defer w.end()

	w.logger.Info("worker.start",
		"idle_interval", w.cfg.IdleInterval,
		"pop_timeout", w.cfg.PopTimeout,
	)
	w.setStatus(ctx, queue.StatusIdle)
	defer func() {
		w.setStatus(ctx, queue.StatusOffline)
		w.logger.Info("worker.stop")
	}()

	for {
		if ctx.Err() != nil || w.jobCtx.Err() != nil {
			return nil
		}
		processed, err := w.poll(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			w.logger.Warn("worker.poll.error", "err", err)
			w.sleep(ctx, w.cfg.IdleInterval)
		case !processed:
			w.sleep(ctx, w.cfg.IdleInterval)
		}
	}
}

// RunOnce pops at most one task and processes it. It reports whether a task
// was taken. The status is not set to Offline afterwards.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if !w.begin() {
		return false, errors.New("worker: already running")
	}
	defer w.end()
	return w.poll(ctx)
}

func (w *Worker) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return false
	}
	w.running = true
	return true
}

func (w *Worker) end() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Worker) poll(ctx context.Context) (bool, error) {
	raw, err := w.store.Pop(ctx, w.cfg.PopTimeout)
	if err != nil {
		return false, fmt.Errorf("pop task: %w", err)
	}
	if raw == nil {
		return false, nil
	}
	rec := w.process(raw)
	w.appendHistory(ctx, rec)
	return true, nil
}

// process handles one raw payload and returns its history record. It never
// panics and always leaves a status behind.
func (w *Worker) process(raw []byte) queue.HistoryRecord {
	start := w.now()
	ctx := w.jobCtx

	env, err := queue.DecodeEnvelope(raw)
	if err != nil {
		w.logger.Warn("worker.job.malformed", "err", err, "bytes", len(raw))
		w.setStatus(ctx, queue.Errored(err.Error()))
		recordJob(queue.OutcomeFailed, 0)
		return queue.FailedRecord(queue.Envelope{}, 0, err, w.now())
	}

	log := w.logger.With("job_id", env.JobID, "repo", contract.RedactURL(env.RepoURL))
	if env.Format == queue.FormatLegacy {
		log.Info("worker.job.legacy_envelope")
	}
	w.setStatus(ctx, queue.Processing(env.RepoURL))

	if age, expired := env.Expired(start); expired {
		log.Warn("worker.job.skipped", "reason", queue.ReasonTTLExceeded, "age", age, "ttl", env.TTL)
		w.setStatus(ctx, queue.StatusIdle)
		recordJob(queue.OutcomeSkipped, 0)
		return queue.SkippedRecord(env, age, w.now())
	}

	log.Info("worker.job.start")
	res, err := w.runPipeline(ctx, env, log)
	duration := w.now().Sub(start)
	if err != nil {
		log.Error("worker.job.failed", "err", err, "duration", duration)
		w.setStatus(ctx, queue.Errored(err.Error()))
		recordJob(queue.OutcomeFailed, duration)
		return queue.FailedRecord(env, duration, err, w.now())
	}

	log.Info("worker.job.complete",
		"files", res.files,
		"embeddings", res.embeddings,
		"parse_errors", res.parseErrors,
		"duration", duration,
	)
	w.setStatus(ctx, queue.StatusIdle)
	recordJob(queue.OutcomeComplete, duration)
	return queue.CompleteRecord(env, duration, res.files, res.embeddings, res.parseErrors, w.now())
}

type jobResult struct {
	files       int
	embeddings  int
	parseErrors int
}

// runPipeline runs the four stages in order. A panic in any stage becomes
// the job's error, and the snapshot is removed whatever happens.
func (w *Worker) runPipeline(ctx context.Context, env queue.Envelope, log *slog.Logger) (res jobResult, err error) {
	var snap *ingestion.Snapshot
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker.job.panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		if cerr := snap.Cleanup(); cerr != nil {
			log.Warn("worker.cleanup.error", "err", cerr)
		}
	}()

	err = w.stage("fetch", log, func() (e error) {
		snap, e = w.stages.Fetcher.Fetch(ctx, env.RepoURL)
		return e
	})
	if err != nil {
		return res, err
	}

	var (
		graph  *ingestion.Graph
		report *ingestion.BuildReport
	)
	err = w.stage("build", log, func() (e error) {
		graph, report, e = w.stages.Builder.Build(ctx, snap)
		return e
	})
	if err != nil {
		return res, err
	}
	if graph == nil || graph.NodeCount() == 0 {
		return res, ErrNoSourceFiles
	}
	if report != nil {
		res.parseErrors = len(report.ParseErrors)
		for _, pe := range report.ParseErrors {
			log.Debug("worker.parse_error", "path", pe.Path, "err", pe.Err)
		}
	}

	var vectors [][]float32
	err = w.stage("train", log, func() (e error) {
		vectors, e = w.stages.Trainer.Train(ctx, graph)
		return e
	})
	if err != nil {
		return res, err
	}

	var pub *publish.Result
	err = w.stage("publish", log, func() (e error) {
		pub, e = w.stages.Publisher.Publish(ctx, vectors, graph.Nodes, env.RepoURL)
		return e
	})
	if err != nil {
		return res, err
	}

	res.files = graph.NodeCount()
	res.embeddings = len(vectors)
	if pub != nil {
		res.embeddings = pub.Points
	}
	return res, nil
}

func (w *Worker) stage(name string, log *slog.Logger, fn func() error) error {
	start := time.Now()
	err := fn()
	recordStage(name, time.Since(start))
	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	log.Debug("worker.stage.done", "stage", name, "duration", time.Since(start))
	return nil
}

// setStatus writes the status without letting a cancelled ctx lose it.
func (w *Worker) setStatus(ctx context.Context, status queue.WorkerStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.StoreTimeout)
	defer cancel()
	if err := w.store.SetStatus(ctx, w.cfg.ID, status); err != nil {
		w.logger.Warn("worker.status.error", "status", status.String(), "err", err)
	}
}

func (w *Worker) appendHistory(ctx context.Context, rec queue.HistoryRecord) {
	data, err := rec.Marshal()
	if err != nil {
		w.logger.Error("worker.history.error", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.StoreTimeout)
	defer cancel()
	if err := w.store.AppendHistory(ctx, data, queue.HistoryLimit); err != nil {
		w.logger.Warn("worker.history.error", "job_id", rec.JobID, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
