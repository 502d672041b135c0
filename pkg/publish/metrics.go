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

package publish

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsPublish struct {
	once sync.Once

	runs     *prometheus.CounterVec
	points   prometheus.Counter
	batches  prometheus.Counter
	retries  prometheus.Counter
	duration prometheus.Histogram
}

var pubMetrics metricsPublish

func (m *metricsPublish) init() {
	m.once.Do(func() {
		m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "depvec_publish_total", Help: "Publish calls by result"}, []string{"result"})
		m.points = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_publish_points_total", Help: "Points written to the index"})
		m.batches = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_publish_batches_total", Help: "Batches written to the index"})
		m.retries = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_publish_retries_total", Help: "Index calls retried after a failure"})
		m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "depvec_publish_seconds", Help: "Publish duration", Buckets: prometheus.DefBuckets})
		prometheus.MustRegister(m.runs, m.points, m.batches, m.retries, m.duration)
	})
}

func recordPublish(result string, points int, d time.Duration) {
	pubMetrics.init()
	pubMetrics.runs.WithLabelValues(result).Inc()
	pubMetrics.points.Add(float64(points))
	pubMetrics.duration.Observe(d.Seconds())
}

func recordBatch() {
	pubMetrics.init()
	pubMetrics.batches.Inc()
}

func recordRetry() {
	pubMetrics.init()
	pubMetrics.retries.Inc()
}
