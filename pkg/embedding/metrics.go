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

package embedding

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsEmbedding struct {
	once sync.Once

	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	nodes    prometheus.Counter
	loss     prometheus.Gauge
}

var embMetrics metricsEmbedding

func (m *metricsEmbedding) init() {
	m.once.Do(func() {
		m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "depvec_train_runs_total", Help: "Training runs by result"}, []string{"result"})
		m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "depvec_train_seconds", Help: "Training duration", Buckets: prometheus.ExponentialBuckets(0.01, 2, 14)})
		m.nodes = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_train_nodes_total", Help: "Nodes embedded"})
		m.loss = prometheus.NewGauge(prometheus.GaugeOpts{Name: "depvec_train_loss", Help: "Mean skip-gram loss of the last logged epoch"})
		prometheus.MustRegister(m.runs, m.duration, m.nodes, m.loss)
	})
}

func recordTrain(result string, nodes int, d time.Duration) {
	embMetrics.init()
	embMetrics.runs.WithLabelValues(result).Inc()
	embMetrics.duration.Observe(d.Seconds())
	if result == "ok" {
		embMetrics.nodes.Add(float64(nodes))
	}
}

func recordLoss(v float64) {
	embMetrics.init()
	embMetrics.loss.Set(v)
}
