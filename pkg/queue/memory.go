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
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-process runs.
// Expiry is accepted but not enforced.
type MemoryStore struct {
	mu       sync.Mutex
	items    [][]byte
	statuses map[string]WorkerStatus
	history  [][]byte
	notify   chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: make(map[string]WorkerStatus),
		notify:   make(chan struct{}, 1),
	}
}

// PushCapped implements Queue.
func (m *MemoryStore) PushCapped(_ context.Context, payload []byte, capacity int, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if capacity > 0 && len(m.items) >= capacity {
		return 0, ErrQueueFull
	}
	item := make([]byte, len(payload))
	copy(item, payload)
	m.items = append(m.items, item)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return int64(len(m.items)), nil
}

// Depth implements Queue.
func (m *MemoryStore) Depth(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.items)), nil
}

// Pop implements Queue.
func (m *MemoryStore) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if item := m.tryPop(); item != nil || timeout <= 0 {
		return item, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return m.tryPop(), nil
		case <-m.notify:
			if item := m.tryPop(); item != nil {
				return item, nil
			}
		}
	}
}

func (m *MemoryStore) tryPop() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil
	}
	head := m.items[0]
	m.items = m.items[1:]
	return head
}

// Status implements Ledger.
func (m *MemoryStore) Status(_ context.Context, workerID string) (WorkerStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[workerID]
	return s, ok, nil
}

// SetStatus implements Ledger.
func (m *MemoryStore) SetStatus(_ context.Context, workerID string, status WorkerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[workerID] = status
	return nil
}

// AppendHistory implements Ledger.
func (m *MemoryStore) AppendHistory(_ context.Context, record []byte, limit int) error {
	if limit <= 0 {
		limit = HistoryLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append([][]byte{append([]byte(nil), record...)}, m.history...)
	if len(m.history) > limit {
		m.history = m.history[:limit]
	}
	return nil
}

// History implements Ledger.
func (m *MemoryStore) History(_ context.Context, limit int) ([][]byte, error) {
	limit = ClampHistoryLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(limit, len(m.history))
	out := make([][]byte, n)
	copy(out, m.history[:n])
	return out, nil
}
