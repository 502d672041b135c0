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

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// QdrantConfig configures the Qdrant REST backend.
type QdrantConfig struct {
	URL     string // e.g. http://localhost:6333
	APIKey  string // sent as the api-key header when set
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored then.
	HTTPClient *http.Client
}

// QdrantBackend implements Backend against the Qdrant REST API.
type QdrantBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Backend = (*QdrantBackend)(nil)

// StatusError is a non-2xx reply from the index.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// NewQdrantBackend creates a client. No request is made until first use.
func NewQdrantBackend(cfg QdrantConfig, logger *slog.Logger) (*QdrantBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid qdrant url %q", cfg.URL)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &QdrantBackend{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		logger:     logger,
	}, nil
}

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantCreateCollection struct {
	Vectors qdrantVectorParams `json:"vectors"`
}

type qdrantPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

type qdrantUpsert struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantCount struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

// EnsureCollection implements Backend.
func (q *QdrantBackend) EnsureCollection(ctx context.Context, name string, dim int) error {
	path := "/collections/" + url.PathEscape(name)

	var info qdrantCollectionInfo
	err := q.do(ctx, "get collection", http.MethodGet, path, nil, &info)
	var se *StatusError
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dim {
			return fmt.Errorf("collection %s has dimension %d, want %d: %w", name, size, dim, ErrDimensionMismatch)
		}
		return nil
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
	default:
		return err
	}

	body := qdrantCreateCollection{Vectors: qdrantVectorParams{Size: dim, Distance: "Cosine"}}
	err = q.do(ctx, "create collection", http.MethodPut, path, body, nil)
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		// Created concurrently by another worker.
		return nil
	}
	if err != nil {
		return err
	}
	q.logger.Info("index.collection.created", "collection", name, "dim", dim)
	return nil
}

// Upsert implements Backend.
func (q *QdrantBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	body := qdrantUpsert{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	path := "/collections/" + url.PathEscape(collection) + "/points?wait=true"
	return q.do(ctx, "upsert points", http.MethodPut, path, body, nil)
}

// Count implements Backend.
func (q *QdrantBackend) Count(ctx context.Context, collection string) (int, error) {
	var out qdrantCount
	path := "/collections/" + url.PathEscape(collection) + "/points/count"
	if err := q.do(ctx, "count points", http.MethodPost, path, map[string]bool{"exact": true}, &out); err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

// Close implements Backend.
func (q *QdrantBackend) Close() error {
	q.httpClient.CloseIdleConnections()
	return nil
}

func (q *QdrantBackend) do(ctx context.Context, op, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("qdrant %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("qdrant %s: create request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s: http request: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("qdrant %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("qdrant %s: parse response: %w", op, err)
		}
	}
	return nil
}
