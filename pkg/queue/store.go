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

package queue

import (
	"context"
	"errors"
	"time"
)

// ErrQueueFull is returned by PushCapped when the queue depth has reached
// the capacity. The queue is left unchanged.
var ErrQueueFull = errors.New("queue is at capacity")

// Queue is the FIFO task queue shared by dispatchers and workers.
type Queue interface {
	// PushCapped appends payload to the tail unless the current depth is
	// already >= capacity, and refreshes the queue's own expiry. It returns
	// the 1-based position of the new item. Check and push are atomic.
	PushCapped(ctx context.Context, payload []byte, capacity int, expiry time.Duration) (int64, error)

	// Depth returns the number of queued items.
	Depth(ctx context.Context) (int64, error)

	// Pop removes and returns the head item. It waits up to timeout for an
	// item when timeout > 0. A nil payload with a nil error means the queue
	// was empty; a queued empty string comes back as a non-nil empty slice.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Ledger holds the worker status value and the bounded job history.
type Ledger interface {
	// Status returns the status stored under workerID ("" for the default
	// key). ok is false when nothing was ever written.
	Status(ctx context.Context, workerID string) (status WorkerStatus, ok bool, err error)

	// SetStatus overwrites the status under workerID.
	SetStatus(ctx context.Context, workerID string, status WorkerStatus) error

	// AppendHistory pushes a record to the front of the history and trims
	// the history to limit entries.
	AppendHistory(ctx context.Context, record []byte, limit int) error

	// History returns up to limit records, newest first.
	History(ctx context.Context, limit int) ([][]byte, error)
}

// Store is the full shared-state service used by both planes.
type Store interface {
	Queue
	Ledger
}

// Keys names the shared-state keys. Dispatchers and workers must agree on
// them.
type Keys struct {
	Queue   string
	Status  string
	History string
}

// DefaultKeys returns the key names used when none are configured.
func DefaultKeys() Keys {
	return Keys{
		Queue:   "depvec:queue",
		Status:  "depvec:worker:status",
		History: "depvec:jobs:history",
	}
}

// StatusKey returns the status key for workerID. An empty id addresses the
// single shared key.
func (k Keys) StatusKey(workerID string) string {
	if workerID == "" {
		return k.Status
	}
	return k.Status + ":" + workerID
}

func (k Keys) withDefaults() Keys {
	d := DefaultKeys()
	if k.Queue == "" {
		k.Queue = d.Queue
	}
	if k.Status == "" {
		k.Status = d.Status
	}
	if k.History == "" {
		k.History = d.History
	}
	return k
}
