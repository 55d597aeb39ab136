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

package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsPipeline holds Prometheus metrics for the pipeline subsystem.
type metricsPipeline struct {
	once sync.Once

	llmCalls           *prometheus.CounterVec
	llmErrors          *prometheus.CounterVec
	llmCallDuration    *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
}

var pipelineMetrics metricsPipeline

func (m *metricsPipeline) init() {
	m.once.Do(func() {
		m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repodoc_pipeline_llm_calls_total",
			Help: "LLM calls issued, by stage",
		}, []string{"stage"})
		m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repodoc_pipeline_llm_errors_total",
			Help: "LLM calls that failed, by stage",
		}, []string{"stage"})
		m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repodoc_pipeline_llm_call_duration_seconds",
			Help:    "LLM call latency, by stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"})
		m.validationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repodoc_pipeline_validation_failures_total",
			Help: "Structurally invalid LLM replies, by stage",
		}, []string{"stage"})
		m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repodoc_pipeline_stage_duration_seconds",
			Help:    "Stage wall time",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
		}, []string{"stage"})

		prometheus.MustRegister(
			m.llmCalls, m.llmErrors, m.llmCallDuration, m.validationFailures, m.stageDuration,
		)
	})
}

func (m *metricsPipeline) observeCall(stage string, d time.Duration, err error) {
	m.init()
	m.llmCalls.WithLabelValues(stage).Inc()
	m.llmCallDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.llmErrors.WithLabelValues(stage).Inc()
	}
}

func (m *metricsPipeline) validationFailure(stage string) {
	m.init()
	m.validationFailures.WithLabelValues(stage).Inc()
}

func (m *metricsPipeline) observeStage(stage string, d time.Duration) {
	m.init()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
