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

package crawler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsCrawler holds Prometheus metrics for the crawler subsystem.
type metricsCrawler struct {
	once sync.Once

	apiRequests prometheus.Counter
	downloaded  prometheus.Counter
	skipped     prometheus.Counter
	excluded    prometheus.Counter
	truncated   prometheus.Counter
	duration    prometheus.Histogram
}

var crawlerMetrics metricsCrawler

func (m *metricsCrawler) init() {
	m.once.Do(func() {
		m.apiRequests = prometheus.NewCounter(prometheus.CounterOpts{Name: "repodoc_crawl_api_requests_total", Help: "REST API requests issued during crawls"})
		m.downloaded = prometheus.NewCounter(prometheus.CounterOpts{Name: "repodoc_crawl_files_downloaded_total", Help: "Files successfully downloaded"})
		m.skipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "repodoc_crawl_files_skipped_total", Help: "Blob downloads that failed and were skipped"})
		m.excluded = prometheus.NewCounter(prometheus.CounterOpts{Name: "repodoc_crawl_files_excluded_total", Help: "Tree entries rejected by glob or size filters"})
		m.truncated = prometheus.NewCounter(prometheus.CounterOpts{Name: "repodoc_crawl_tree_truncated_total", Help: "Crawls whose recursive tree listing was truncated"})
		m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repodoc_crawl_duration_seconds",
			Help:    "Wall time of a full crawl",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		})

		prometheus.MustRegister(
			m.apiRequests, m.downloaded, m.skipped, m.excluded, m.truncated, m.duration,
		)
	})
}

func (m *metricsCrawler) requests() {
	m.init()
	m.apiRequests.Inc()
}

func (m *metricsCrawler) observe(s Stats, seconds float64) {
	m.init()
	m.duration.Observe(seconds)
	m.downloaded.Add(float64(s.DownloadedCount))
	m.skipped.Add(float64(s.SkippedCount))
	m.excluded.Add(float64(s.ExcludedCount))
	if s.TreeTruncated {
		m.truncated.Inc()
	}
}
