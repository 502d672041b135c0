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

// Package publish writes trained embeddings to a vector index in batches,
// with bounded retries per batch.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/depvec/pkg/storage"
)

// Defaults for Config.
const (
	DefaultCollection     = "depvec_structural"
	DefaultBatchSize      = 100
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 4 * time.Second
)

// pointNamespace scopes the UUIDv5 point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://depvec.dev/points"))

// Config controls batching and retries.
type Config struct {
	Collection     string
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}

// Backoff returns the wait after the given failed attempt (1-based):
// initial * 2^(attempt-1), capped at MaxBackoff.
func (c Config) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	d := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(d, c.MaxBackoff)
}

// PublishError reports a publish that gave up. Nothing after the failed
// batch was written.
type PublishError struct {
	Collection string
	Batch      int // 0-based batch index, -1 for collection setup
	Attempts   int
	Written    int // points written by earlier batches
	Err        error
}

func (e *PublishError) Error() string {
	if e.Batch < 0 {
		return fmt.Sprintf("publish to %s: ensure collection after %d attempts: %v", e.Collection, e.Attempts, e.Err)
	}
	return fmt.Sprintf("publish to %s: batch %d failed after %d attempts: %v", e.Collection, e.Batch, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ErrLengthMismatch is returned when vectors and paths differ in length.
var ErrLengthMismatch = errors.New("vectors and paths differ in length")

// Result summarizes a successful publish.
type Result struct {
	Collection string
	Points     int
	Batches    int
	Retries    int
	Duration   time.Duration
}

// Publisher writes embeddings through a storage.Backend.
type Publisher struct {
	backend storage.Backend
	cfg     Config
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithSleep replaces the wait between attempts. Tests use it to record
// backoff without waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Publisher) { p.sleep = fn }
}

// NewPublisher creates a publisher. A nil logger uses slog.Default().
func NewPublisher(backend storage.Backend, cfg Config, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{backend: backend, cfg: cfg.withDefaults(), logger: logger, sleep: sleepCtx}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Publisher) Config() Config { return p.cfg }

// PointID returns the deterministic id of the vector for filePath in
// repoURL, so republishing a repository overwrites its previous vectors.
func PointID(repoURL, filePath string) string {
	return uuid.NewSHA1(pointNamespace, []byte(repoURL+"\x00"+filePath)).String()
}

// Publish writes vectors[i] for paths[i]. The collection is created with
// the vectors' dimension when missing.
func (p *Publisher) Publish(ctx context.Context, vectors [][]float32, paths []string, repoURL string) (*Result, error) {
	start := time.Now()
	if len(vectors) != len(paths) {
		return nil, fmt.Errorf("publish %d vectors for %d paths: %w", len(vectors), len(paths), ErrLengthMismatch)
	}
	res := &Result{Collection: p.cfg.Collection}
	if len(vectors) == 0 {
		return res, nil
	}
	dim := len(vectors[0])

	attempts, err := p.withRetry(ctx, "collection", func() error {
		return p.backend.EnsureCollection(ctx, p.cfg.Collection, dim)
	})
	res.Retries += attempts - 1
	if err != nil {
		recordPublish("error", 0, time.Since(start))
		return nil, &PublishError{Collection: p.cfg.Collection, Batch: -1, Attempts: attempts, Err: err}
	}

	for batch, lo := 0, 0; lo < len(vectors); batch, lo = batch+1, lo+p.cfg.BatchSize {
		hi := min(lo+p.cfg.BatchSize, len(vectors))
		points := make([]storage.Point, 0, hi-lo)
		for i := lo; i < hi; i++ {
			points = append(points, storage.Point{
				ID:     PointID(repoURL, paths[i]),
				Vector: vectors[i],
				Payload: storage.Payload{
					FilePath: paths[i],
					RepoURL:  repoURL,
					Kind:     storage.KindStructural,
				},
			})
		}

		attempts, err := p.withRetry(ctx, "batch", func() error {
			return p.backend.Upsert(ctx, p.cfg.Collection, points)
		})
		res.Retries += attempts - 1
		if err != nil {
			recordPublish("error", res.Points, time.Since(start))
			p.logger.Error("publish.batch.failed",
				"collection", p.cfg.Collection, "batch", batch, "attempts", attempts, "err", err)
			return nil, &PublishError{Collection: p.cfg.Collection, Batch: batch, Attempts: attempts, Written: res.Points, Err: err}
		}
		res.Points += len(points)
		res.Batches++
		recordBatch()
	}

	res.Duration = time.Since(start)
	recordPublish("ok", res.Points, res.Duration)
	p.logger.Info("publish.complete",
		"collection", p.cfg.Collection,
		"repo", repoURL,
		"points", res.Points,
		"batches", res.Batches,
		"retries", res.Retries,
		"duration", res.Duration,
	)
	return res, nil
}

// withRetry runs fn up to MaxAttempts times and returns the number of
// attempts made. Non-retryable errors stop immediately.
func (p *Publisher) withRetry(ctx context.Context, what string, fn func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return attempt, nil
		}
		if attempt == p.cfg.MaxAttempts || !storage.Retryable(err) {
			return attempt, err
		}
		wait := p.cfg.Backoff(attempt)
		recordRetry()
		p.logger.Warn("publish.retry", "op", what, "attempt", attempt, "sleep_ms", wait.Milliseconds(), "err", err)
		if serr := p.sleep(ctx, wait); serr != nil {
			return attempt, serr
		}
	}
	return p.cfg.MaxAttempts, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
