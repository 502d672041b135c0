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

package ingestion

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for fetching and graph building.
type metricsIngestion struct {
	once sync.Once

	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram

	filesParsed    prometheus.Counter
	parseErrors    prometheus.Counter
	importsFound   prometheus.Counter
	importsLinked  prometheus.Counter
	selfLoopGraphs prometheus.Counter

	buildDuration prometheus.Histogram
	graphNodes    prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "depvec_fetch_total", Help: "Repository fetches by result"}, []string{"result"})
		m.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "depvec_fetch_seconds", Help: "Clone and walk duration", Buckets: prometheus.ExponentialBuckets(0.25, 2, 10)})

		m.filesParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_graph_files_parsed_total", Help: "Source files parsed"})
		m.parseErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_graph_parse_errors_total", Help: "Files kept as nodes without edges after a parse failure"})
		m.importsFound = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_graph_imports_total", Help: "Import statements extracted"})
		m.importsLinked = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_graph_imports_resolved_total", Help: "Imports resolved to repository files"})
		m.selfLoopGraphs = prometheus.NewCounter(prometheus.CounterOpts{Name: "depvec_graph_self_loop_fallbacks_total", Help: "Graphs with no resolved imports that fell back to self-loops"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
		m.buildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "depvec_graph_build_seconds", Help: "Graph build duration", Buckets: buckets})
		m.graphNodes = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "depvec_graph_nodes", Help: "Nodes per built graph", Buckets: prometheus.ExponentialBuckets(1, 4, 10)})

		prometheus.MustRegister(
			m.fetches, m.fetchDuration,
			m.filesParsed, m.parseErrors, m.importsFound, m.importsLinked, m.selfLoopGraphs,
			m.buildDuration, m.graphNodes,
		)
	})
}

func recordFetch(result string, d time.Duration) {
	ingMetrics.init()
	ingMetrics.fetches.WithLabelValues(result).Inc()
	ingMetrics.fetchDuration.Observe(d.Seconds())
}

func recordBuild(r *BuildReport, d time.Duration) {
	ingMetrics.init()
	ingMetrics.filesParsed.Add(float64(r.Files))
	ingMetrics.parseErrors.Add(float64(len(r.ParseErrors)))
	ingMetrics.importsFound.Add(float64(r.Imports))
	ingMetrics.importsLinked.Add(float64(r.Resolved))
	if r.SelfLoopFallback {
		ingMetrics.selfLoopGraphs.Inc()
	}
	ingMetrics.buildDuration.Observe(d.Seconds())
	ingMetrics.graphNodes.Observe(float64(r.Files))
}
