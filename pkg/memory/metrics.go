// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"github.com/prometheus/client_golang/prometheus"
)

// allocatorMetrics are the prometheus counters of an allocator.
type allocatorMetrics struct {
	allocations  *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	frees        *prometheus.CounterVec
	freeFailures *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

const (
	backendLabel = "backend"
	kindLabel    = "kind"
)

func newAllocatorMetrics() *allocatorMetrics {
	return &allocatorMetrics{
		allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocations_total",
				Help: "Number of successful non-empty allocations per backend.",
			},
			[]string{backendLabel},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocated_bytes_total",
				Help: "Number of bytes successfully allocated per backend.",
			},
			[]string{backendLabel},
		),
		frees: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frees_total",
				Help: "Number of successful frees per backend.",
			},
			[]string{backendLabel},
		),
		freeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "free_failures_total",
				Help: "Number of failed native frees per backend.",
			},
			[]string{backendLabel},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocation_failures_total",
				Help: "Number of failed allocations per backend and error kind.",
			},
			[]string{backendLabel, kindLabel},
		),
	}
}

// Describe implements the prometheus.Collector interface.
func (m *allocatorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.allocations.Describe(ch)
	m.bytes.Describe(ch)
	m.frees.Describe(ch)
	m.freeFailures.Describe(ch)
	m.failures.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *allocatorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.allocations.Collect(ch)
	m.bytes.Collect(ch)
	m.frees.Collect(ch)
	m.freeFailures.Collect(ch)
	m.failures.Collect(ch)
}

func (m *allocatorMetrics) allocated(b Backend, size uint64) {
	m.allocations.WithLabelValues(b.String()).Inc()
	m.bytes.WithLabelValues(b.String()).Add(float64(size))
}

func (m *allocatorMetrics) failed(b Backend, err error) {
	m.failures.WithLabelValues(b.String(), Classify(err).String()).Inc()
}

func (m *allocatorMetrics) freed(b Backend) {
	m.frees.WithLabelValues(b.String()).Inc()
}

func (m *allocatorMetrics) freeFailed(b Backend) {
	m.freeFailures.WithLabelValues(b.String()).Inc()
}
