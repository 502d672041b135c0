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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pushCappedScript performs the depth check, the push and the expiry refresh
// in one round trip so that concurrent dispatchers cannot overshoot the cap.
//
// KEYS[1] queue, ARGV[1] payload, ARGV[2] capacity (<=0 unbounded),
// ARGV[3] expiry seconds (<=0 leaves the expiry alone).
// Returns -1 when full, otherwise the new length.
var pushCappedScript = redis.NewScript(`
local cap = tonumber(ARGV[2])
if cap > 0 and redis.call('LLEN', KEYS[1]) >= cap then
	return -1
end
local pos = redis.call('RPUSH', KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('EXPIRE', KEYS[1], ttl)
end
return pos
`)

// RedisStore implements Store on Redis lists and strings.
type RedisStore struct {
	client redis.UniversalClient
	keys   Keys
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Empty key names fall back to
// DefaultKeys.
func NewRedisStore(client redis.UniversalClient, keys Keys) *RedisStore {
	return &RedisStore{client: client, keys: keys.withDefaults()}
}

// Keys returns the key names in use.
func (s *RedisStore) Keys() Keys { return s.keys }

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// PushCapped implements Queue.
func (s *RedisStore) PushCapped(ctx context.Context, payload []byte, capacity int, expiry time.Duration) (int64, error) {
	expirySecs := int64(0)
	if expiry > 0 {
		expirySecs = int64(expiry / time.Second)
		if expirySecs == 0 {
			expirySecs = 1
		}
	}

	pos, err := pushCappedScript.Run(ctx, s.client, []string{s.keys.Queue}, payload, capacity, expirySecs).Int64()
	if err != nil {
		return 0, fmt.Errorf("push to %s: %w", s.keys.Queue, err)
	}
	if pos < 0 {
		return 0, ErrQueueFull
	}
	return pos, nil
}

// Depth implements Queue.
func (s *RedisStore) Depth(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, s.keys.Queue).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// Pop implements Queue. With a positive timeout it blocks with BLPOP,
// otherwise it issues a plain LPOP.
func (s *RedisStore) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		res, err := s.client.BLPop(ctx, timeout, s.keys.Queue).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("blocking pop: %w", err)
		}
		if len(res) != 2 {
			return nil, fmt.Errorf("blocking pop: unexpected reply of %d elements", len(res))
		}
		return nonNil([]byte(res[1])), nil
	}

	data, err := s.client.LPop(ctx, s.keys.Queue).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop: %w", err)
	}
	return nonNil(data), nil
}

// nonNil keeps a queued empty string distinguishable from an empty queue.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Status implements Ledger.
func (s *RedisStore) Status(ctx context.Context, workerID string) (WorkerStatus, bool, error) {
	v, err := s.client.Get(ctx, s.keys.StatusKey(workerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read status: %w", err)
	}
	return WorkerStatus(v), true, nil
}

// SetStatus implements Ledger.
func (s *RedisStore) SetStatus(ctx context.Context, workerID string, status WorkerStatus) error {
	if err := s.client.Set(ctx, s.keys.StatusKey(workerID), string(status), 0).Err(); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// AppendHistory implements Ledger. LPUSH and LTRIM run in one MULTI block.
func (s *RedisStore) AppendHistory(ctx context.Context, record []byte, limit int) error {
	if limit <= 0 {
		limit = HistoryLimit
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, s.keys.History, record)
		p.LTrim(ctx, s.keys.History, 0, int64(limit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History implements Ledger.
func (s *RedisStore) History(ctx context.Context, limit int) ([][]byte, error) {
	limit = ClampHistoryLimit(limit)
	items, err := s.client.LRange(ctx, s.keys.History, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = []byte(it)
	}
	return out, nil
}
