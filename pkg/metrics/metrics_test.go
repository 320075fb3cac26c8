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

package metrics_test

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/containers/nri-memalloc/pkg/memory"
	"github.com/containers/nri-memalloc/pkg/metrics"
)

func TestMetricsDescriptors(t *testing.T) {
	r := metrics.NewRegistry()
	require.NotNil(t, r, "non-nil registry")

	newTestGauge(t, r, "test1", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	newTestGauge(t, r, "test2", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))

	descriptors, _ := dump(t, r, []string{"*"})
	require.True(t, descriptors.HasEntry("test1", "gauge"))
	require.True(t, descriptors.HasEntry("test2", "gauge"))
}

func TestPrefixedCollection(t *testing.T) {
	r := metrics.NewRegistry()

	newTestGauge(t, r, "test1")
	newTestGauge(t, r, "test2", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))

	_, collected := dump(t, r, []string{"*"})
	require.Equal(t, "0", collected.GetValue("default_test1"))
	require.Equal(t, "0", collected.GetValue("test2"))

	_, collected = dump(t, r, []string{"*"}, metrics.WithNamespace("ns"))
	require.Equal(t, "0", collected.GetValue("ns_default_test1"))
	require.Equal(t, "0", collected.GetValue("ns_test2"))
}

func TestUpdatedMetricsCollection(t *testing.T) {
	r := metrics.NewRegistry()

	g1 := newTestGauge(t, r, "test1", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	g2 := newTestGauge(t, r, "test2", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))

	g, err := r.NewGatherer(metrics.WithMetrics([]string{"*"}))
	require.NoError(t, err)

	_, collected := collect(t, g)
	require.Equal(t, "0", collected.GetValue("test1"))
	require.Equal(t, "0", collected.GetValue("test2"))

	g1.gauge.Inc()
	g2.gauge.Set(5)

	_, collected = collect(t, g)
	require.Equal(t, "1", collected.GetValue("test1"))
	require.Equal(t, "5", collected.GetValue("test2"))
	require.True(t, collected.HasValue("test2", "5"))
}

func TestMetricsConfiguration(t *testing.T) {
	r := metrics.NewRegistry()

	newTestGauge(t, r, "test1", metrics.WithGroup("group1"))
	newTestGauge(t, r, "test2", metrics.WithGroup("group1"),
		metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	newTestGauge(t, r, "test3", metrics.WithGroup("group2"),
		metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	newTestGauge(t, r, "test4", metrics.WithGroup("group2"))

	described, collected := dump(t, r, []string{"test1", "group2"})
	require.True(t, described.HasEntry("group1_test1", "gauge"))
	require.True(t, described.HasEntry("test3", "gauge"))
	require.True(t, described.HasEntry("group2_test4", "gauge"))

	require.True(t, collected.HasEntry("group1_test1"), "group1_test1 collected")
	require.False(t, collected.HasEntry("test2"), "test2 not collected")
	require.True(t, collected.HasEntry("test3"), "test3 collected")
	require.True(t, collected.HasEntry("group2_test4"), "group2_test4 collected")

	require.Equal(t, []string{"group1/test1", "group1/test2", "group2/test3", "group2/test4"},
		r.Collectors())
}

func TestUnmatchedGlob(t *testing.T) {
	r := metrics.NewRegistry()
	newTestGauge(t, r, "test1")

	_, err := r.NewGatherer(metrics.WithMetrics([]string{"test1", "bogus*"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bogus*")
}

func TestDuplicateRegistration(t *testing.T) {
	r := metrics.NewRegistry()
	newTestGauge(t, r, "test1")

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test1", Help: "duplicate"})
	require.Error(t, r.Register("test1", gauge))
	require.NoError(t, r.Register("test1", gauge, metrics.WithGroup("other")))
}

func TestAllocatorCollector(t *testing.T) {
	a, err := memory.NewAllocator()
	require.NoError(t, err)
	defer a.Close()

	r := metrics.NewRegistry()
	require.NoError(t, r.Register("allocator", a.Collector(), metrics.WithGroup("memory")))

	ptr, err := a.Allocate(memory.Pinned, 4096)
	require.NoError(t, err)
	a.GetDeleter(memory.Pinned).Delete(ptr)

	described, collected := dump(t, r, []string{"memory"}, metrics.WithNamespace("nri"))
	require.True(t, described.HasEntry("nri_memory_allocations_total", "counter"))
	require.Equal(t, "1", collected.GetValue(`nri_memory_allocations_total{backend="Pinned"}`))
	require.Equal(t, "4096", collected.GetValue(`nri_memory_allocated_bytes_total{backend="Pinned"}`))
	require.Equal(t, "1", collected.GetValue(`nri_memory_frees_total{backend="Pinned"}`))
}

type testGauge struct {
	name  string
	gauge prometheus.Gauge
}

func newTestGauge(t *testing.T, r *metrics.Registry, name string, options ...metrics.RegisterOption) *testGauge {
	g := &testGauge{
		name: name,
	}
	g.gauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: name,
			Help: "Test gauge " + name,
		},
	)

	require.NoError(t, r.Register(g.name, g.gauge, options...))

	return g
}

type described []string

func (d described) HasEntry(name, kind string) bool {
	for _, e := range d {
		split := strings.Split(e, " ")
		if len(split) >= 2 && split[0] == name && split[1] == kind {
			return true
		}
	}

	return false
}

type collected []string

func (c collected) HasEntry(name string) bool {
	for _, e := range c {
		split := strings.SplitN(e, " ", 2)
		if len(split) > 0 && split[0] == name {
			return true
		}
	}

	return false
}

func (c collected) HasValue(name, value string) bool {
	return c.GetValue(name) == value
}

func (c collected) GetValue(name string) string {
	for _, e := range c {
		split := strings.SplitN(e, " ", 2)
		if len(split) == 2 && split[0] == name {
			return split[1]
		}
	}

	return ""
}

func dump(t *testing.T, r *metrics.Registry, enabled []string, opts ...metrics.GathererOption) (described, collected) {
	g, err := r.NewGatherer(append(opts, metrics.WithMetrics(enabled))...)
	require.NoError(t, err)
	require.NotNil(t, g)
	return collect(t, g)
}

func collect(t *testing.T, g *metrics.Gatherer) (described, collected) {
	buf := &bytes.Buffer{}
	require.NoError(t, g.Dump(buf))

	var (
		types   []string
		metrics []string
		scanner = bufio.NewScanner(buf)
	)

	for scanner.Scan() {
		e := scanner.Text()

		switch {
		case strings.HasPrefix(e, "# HELP"):
		case strings.HasPrefix(e, "# TYPE "):
			types = append(types, strings.TrimPrefix(e, "# TYPE "))
		case e == "":
		default:
			metrics = append(metrics, e)
		}
	}

	return described(types), collected(metrics)
}
