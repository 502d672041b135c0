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
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsDispatch struct {
	once sync.Once

	enqueues *prometheus.CounterVec
	depth    prometheus.Gauge
	requests *prometheus.HistogramVec
}

var dispMetrics metricsDispatch

func (m *metricsDispatch) init() {
	m.once.Do(func() {
		m.enqueues = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "depvec_enqueue_total", Help: "Enqueue attempts by outcome"}, []string{"outcome"})
		m.depth = prometheus.NewGauge(prometheus.GaugeOpts{Name: "depvec_queue_depth", Help: "Last observed queue depth"})
		m.requests = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "depvec_http_request_seconds", Help: "HTTP requests by route and status", Buckets: prometheus.DefBuckets}, []string{"route", "code"})
		prometheus.MustRegister(m.enqueues, m.depth, m.requests)
	})
}

func recordEnqueue(outcome string) {
	dispMetrics.init()
	dispMetrics.enqueues.WithLabelValues(outcome).Inc()
}

func recordDepth(n int64) {
	dispMetrics.init()
	dispMetrics.depth.Set(float64(n))
}

func recordRequest(route string, code int, d time.Duration) {
	dispMetrics.init()
	dispMetrics.requests.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}
