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

package dispatch

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/depvec/internal/contract"
	"github.com/kraklabs/depvec/pkg/queue"
)

// Defaults for Config.
const (
	DefaultQueueCap = 10
	DefaultTaskTTL  = 24 * time.Hour
)

var (
	// ErrInvalidRepoURL is returned when the repository reference fails
	// syntactic validation. The queue is not touched.
	ErrInvalidRepoURL = contract.ErrInvalidRepoURL

	// ErrUnauthorized is returned when the admin credential does not match.
	ErrUnauthorized = errors.New("invalid or missing admin credential")

	// ErrQueueFull is returned when the queue depth has reached the cap.
	ErrQueueFull = queue.ErrQueueFull

	// ErrQueueUnavailable is returned when the shared store cannot be
	// reached.
	ErrQueueUnavailable = errors.New("task queue unavailable")
)

// Config configures a Dispatcher.
type Config struct {
	// AdminToken is the shared secret required by Enqueue. An empty token
	// rejects every request.
	AdminToken string

	QueueCap int           // <= 0 means DefaultQueueCap
	TaskTTL  time.Duration // stamped on every envelope; <= 0 means DefaultTaskTTL

	// QueueExpiry is refreshed on the queue key at every push; <= 0 uses
	// TaskTTL.
	QueueExpiry time.Duration

	// StatusWorkerID is the worker whose status WorkerStatus reads when the
	// caller names none.
	StatusWorkerID string
}

// EnqueueResult is returned by a successful Enqueue.
type EnqueueResult struct {
	JobID         string `json:"job_id"`
	QueuePosition int64  `json:"queue_position"`
}

// Dispatcher is the control plane: it admits jobs onto the queue and reads
// back worker status and job history. It keeps no state of its own, so any
// number of instances may share one store.
type Dispatcher struct {
	store  queue.Store
	cfg    Config
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates a Dispatcher. A nil logger uses slog.Default().
func New(store queue.Store, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = DefaultQueueCap
	}
	if cfg.TaskTTL <= 0 {
		cfg.TaskTTL = DefaultTaskTTL
	}
	if cfg.QueueExpiry <= 0 {
		cfg.QueueExpiry = cfg.TaskTTL
	}
	return &Dispatcher{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Capacity returns the configured queue cap.
func (d *Dispatcher) Capacity() int { return d.cfg.QueueCap }

// Enqueue authenticates the caller, validates repoURL and appends a task
// envelope to the queue. It never writes status or history.
func (d *Dispatcher) Enqueue(ctx context.Context, repoURL, token string) (EnqueueResult, error) {
	if !d.authorized(token) {
		recordEnqueue("unauthorized")
		return EnqueueResult{}, ErrUnauthorized
	}

	repoURL = strings.TrimSpace(repoURL)
	if err := contract.ValidateRepoURL(repoURL); err != nil {
		recordEnqueue("invalid")
		d.logger.Info("dispatch.enqueue.rejected", "reason", "invalid_url", "err", err)
		return EnqueueResult{}, err
	}

	env := queue.NewEnvelope(d.newID(), repoURL, d.now(), d.cfg.TaskTTL)
	payload, err := env.Encode()
	if err != nil {
		recordEnqueue("invalid")
		return EnqueueResult{}, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}

	pos, err := d.store.PushCapped(ctx, payload, d.cfg.QueueCap, d.cfg.QueueExpiry)
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		recordEnqueue("full")
		d.logger.Warn("dispatch.enqueue.rejected", "reason", "queue_full", "cap", d.cfg.QueueCap)
		return EnqueueResult{}, ErrQueueFull
	case err != nil:
		recordEnqueue("unavailable")
		d.logger.Error("dispatch.enqueue.failed", "err", err)
		return EnqueueResult{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	recordEnqueue("accepted")
	recordDepth(pos)
	d.logger.Info("dispatch.enqueue.accepted",
		"job_id", env.JobID,
		"repo", contract.RedactURL(repoURL),
		"position", pos,
	)
	return EnqueueResult{JobID: env.JobID, QueuePosition: pos}, nil
}

func (d *Dispatcher) authorized(token string) bool {
	if d.cfg.AdminToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(d.cfg.AdminToken)) == 1
}

// WorkerStatus returns the status published by workerID (or the configured
// default worker when empty). A worker that never wrote a status is Offline.
func (d *Dispatcher) WorkerStatus(ctx context.Context, workerID string) (queue.WorkerStatus, error) {
	if workerID == "" {
		workerID = d.cfg.StatusWorkerID
	}
	status, ok, err := d.store.Status(ctx, workerID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if !ok || status == "" {
		return queue.StatusOffline, nil
	}
	return status, nil
}

// JobHistory returns up to limit records, newest first. limit is clamped
// to [1, 100]; a non-positive limit returns everything kept. Records that
// cannot be decoded are skipped.
func (d *Dispatcher) JobHistory(ctx context.Context, limit int) ([]queue.HistoryRecord, error) {
	raw, err := d.store.History(ctx, queue.ClampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	records := make([]queue.HistoryRecord, 0, len(raw))
	for _, item := range raw {
		rec, err := queue.UnmarshalHistoryRecord(item)
		if err != nil {
			d.logger.Warn("dispatch.history.skip", "err", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// QueueDepth returns the number of queued tasks.
func (d *Dispatcher) QueueDepth(ctx context.Context) (int64, error) {
	n, err := d.store.Depth(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	recordDepth(n)
	return n, nil
}
