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

// Package metrics is a thin layer of grouping and namespacing around
// prometheus collectors. Collectors are registered by name into groups.
// A Gatherer enables the collectors matching a set of globs and prefixes
// their metrics with the group name and a common namespace.
//
// Simple Usage
//
//	a, err := memory.NewAllocator()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	metrics.MustRegister("allocator", a.Collector(), metrics.WithGroup("memory"))
//
//	g, err := metrics.NewGatherer(
//	    metrics.WithNamespace("nri"),
//	    metrics.WithMetrics([]string{"memory"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	g.Dump(os.Stdout)
package metrics
