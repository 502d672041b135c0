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
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/depvec/internal/output"
	"github.com/kraklabs/depvec/pkg/queue"
)

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type statusResponse struct {
	Status queue.WorkerStatus `json:"status"`
}

type queueResponse struct {
	Depth    int64 `json:"depth"`
	Capacity int   `json:"capacity"`
}

// NewHandler returns the HTTP surface of d:
//
//	POST /ingest/{repo_url...}   enqueue (Authorization: Bearer <token>)
//	GET  /worker/status          current worker status (?worker=<id>)
//	GET  /jobs/history           recent job records (?limit=N)
//	GET  /queue                  queue depth and capacity
//	GET  /healthz                liveness, plus a store ping when supported
//	GET  /metrics                Prometheus exposition
//
// pinger may be nil.
func NewHandler(d *Dispatcher, pinger Pinger, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Post("/ingest/*", handleIngest(d))
	r.Get("/worker/status", handleWorkerStatus(d))
	r.Get("/jobs/history", handleJobHistory(d))
	r.Get("/queue", handleQueue(d))
	r.Get("/healthz", handleHealth(pinger))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func handleIngest(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repoURL, err := url.PathUnescape(chi.URLParam(r, "*"))
		if err != nil {
			output.WriteError(w, http.StatusBadRequest, output.ErrTypeInvalidRequest, "malformed repository url encoding")
			return
		}

		res, err := d.Enqueue(r.Context(), repoURL, bearerToken(r))
		switch {
		case err == nil:
			output.WriteJSON(w, http.StatusOK, res)
		case errors.Is(err, ErrUnauthorized):
			output.WriteError(w, http.StatusUnauthorized, output.ErrTypeAuthentication, "invalid or missing bearer token")
		case errors.Is(err, ErrInvalidRepoURL):
			output.WriteError(w, http.StatusBadRequest, output.ErrTypeInvalidRequest, "%v", err)
		case errors.Is(err, ErrQueueFull):
			output.WriteError(w, http.StatusTooManyRequests, output.ErrTypeRateLimit, "queue is at capacity (%d), retry later", d.Capacity())
		default:
			output.WriteError(w, http.StatusServiceUnavailable, output.ErrTypeUnavailable, "task queue unavailable")
		}
	}
}

func handleWorkerStatus(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := d.WorkerStatus(r.Context(), r.URL.Query().Get("worker"))
		if err != nil {
			output.WriteError(w, http.StatusServiceUnavailable, output.ErrTypeUnavailable, "status store unavailable")
			return
		}
		output.WriteJSON(w, http.StatusOK, statusResponse{Status: status})
	}
}

func handleJobHistory(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queue.HistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				output.WriteError(w, http.StatusBadRequest, output.ErrTypeInvalidRequest, "limit must be an integer")
				return
			}
			limit = n
		}

		records, err := d.JobHistory(r.Context(), limit)
		if err != nil {
			output.WriteError(w, http.StatusServiceUnavailable, output.ErrTypeUnavailable, "history store unavailable")
			return
		}
		output.WriteJSON(w, http.StatusOK, records)
	}
}

func handleQueue(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depth, err := d.QueueDepth(r.Context())
		if err != nil {
			output.WriteError(w, http.StatusServiceUnavailable, output.ErrTypeUnavailable, "task queue unavailable")
			return
		}
		output.WriteJSON(w, http.StatusOK, queueResponse{Depth: depth, Capacity: d.Capacity()})
	}
}

func handleHealth(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				output.WriteError(w, http.StatusServiceUnavailable, output.ErrTypeUnavailable, "store unreachable")
				return
			}
		}
		output.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// requestLogger logs one line per request. Only the route pattern is
// logged, so repository URLs never reach the log.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			recordRequest(route, ww.Status(), time.Since(start))
			logger.Debug("http.request",
				"method", r.Method,
				"route", route,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
