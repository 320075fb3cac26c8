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

// memprobe probes the memory backends of the native runtime, reporting
// which backends are supported, how allocations fail, and optionally the
// resulting allocator metrics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/api/resource"
	"sigs.k8s.io/yaml"

	"github.com/containers/nri-memalloc/pkg/apis/config/v1alpha1"
	cfgapi "github.com/containers/nri-memalloc/pkg/apis/config/v1alpha1/memory"
	"github.com/containers/nri-memalloc/pkg/config"
	logger "github.com/containers/nri-memalloc/pkg/log"
	"github.com/containers/nri-memalloc/pkg/memory"
	"github.com/containers/nri-memalloc/pkg/memory/probe"
	"github.com/containers/nri-memalloc/pkg/metrics"
	_ "github.com/containers/nri-memalloc/pkg/metrics/collectors"
)

type logrusFormatter struct{}

func (f *logrusFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return fmt.Appendf(nil, "memprobe: %s %s\n", entry.Level, entry.Message), nil
}

var (
	log *logrus.Logger
)

const (
	defaultNamespace = "nri"
)

func main() {
	log = logrus.StandardLogger()
	log.SetFormatter(&logrusFormatter{})

	configFlag := flag.String("config", "", "MemoryAllocator configuration file")
	runtimeFlag := flag.String("runtime", "", "Native runtime to use (auto, simulated, cuda), overrides configuration")
	sizeFlag := flag.String("size", "1Mi", "Size of the probing allocation, e.g. 4096, 64Ki, 1Mi")
	roundTripFlag := flag.Uint64("roundtrip", 1024, "Number of values to verify in a Pinned -> GPU -> Host round trip, 0 to skip")
	capacityFlag := flag.String("device-capacity", "", "Simulated device capacity, e.g. 512Mi, overrides configuration")
	noUnifiedFlag := flag.Bool("no-unified", false, "Simulate a platform without unified memory")
	outputFlag := flag.String("o", "text", "Output format (text, json, yaml)")
	metricsFlag := flag.Bool("metrics", false, "Dump allocator metrics after probing")
	debugFlag := flag.String("debug", "", "Comma-separated list of logger sources to enable debug messages for, e.g. memory,native")
	verboseFlag := flag.Bool("v", false, "Enable verbose logging")
	veryVerboseFlag := flag.Bool("vv", false, "Enable very verbose logging")
	flag.Parse()

	log.SetLevel(logrus.InfoLevel)
	if *verboseFlag {
		log.SetLevel(logrus.DebugLevel)
	}
	if *veryVerboseFlag {
		log.SetLevel(logrus.TraceLevel)
	}

	cfg := &v1alpha1.MemoryAllocator{}
	if *configFlag != "" {
		log.Debugf("reading configuration from %q", *configFlag)
		c, err := config.Load(*configFlag)
		if err != nil {
			log.Fatalf("failed to load configuration: %v", err)
		}
		cfg = c
	}

	spec := cfg.AllocatorConfig()
	if *runtimeFlag != "" {
		spec.Runtime = *runtimeFlag
	}
	if *capacityFlag != "" {
		q, err := resource.ParseQuantity(*capacityFlag)
		if err != nil {
			log.Fatalf("invalid -device-capacity %q: %v", *capacityFlag, err)
		}
		spec.Simulator.DeviceCapacity = &q
	}
	if *noUnifiedFlag {
		spec.Simulator.DisableUnified = true
	}
	if *debugFlag != "" {
		spec.Log.Debug = append(spec.Log.Debug, strings.Split(*debugFlag, ",")...)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if err := logger.Configure(&spec.Log); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}
	defer logger.Flush()

	size, err := parseSize(*sizeFlag)
	if err != nil {
		log.Fatalf("invalid -size %q: %v", *sizeFlag, err)
	}

	a, err := memory.NewAllocator(memory.WithConfig(spec))
	if err != nil {
		log.Fatalf("failed to create allocator: %v", err)
	}

	if err := metrics.Register("allocator", a.Collector(), metrics.WithGroup("memory")); err != nil {
		log.Fatalf("failed to register allocator metrics: %v", err)
	}

	log.Debugf("probing %s runtime with %d bytes", a.Runtime().Name(), size)

	report := probe.Run(a, size)
	failed := report.Failed()

	if *roundTripFlag > 0 {
		if err := report.WithRoundTrip(a, *roundTripFlag); err != nil {
			log.Errorf("round trip failed: %v", err)
			failed = true
		}
	}

	if err := output(report, *outputFlag); err != nil {
		log.Fatalf("failed to output report: %v", err)
	}

	if *metricsFlag {
		if err := dumpMetrics(spec); err != nil {
			log.Errorf("failed to dump metrics: %v", err)
			failed = true
		}
	}

	if err := a.Close(); err != nil {
		log.Errorf("failed to close allocator: %v", err)
		failed = true
	}

	if failed {
		logger.Flush()
		os.Exit(1)
	}
}

func parseSize(str string) (uint64, error) {
	q, err := resource.ParseQuantity(str)
	if err != nil {
		return 0, err
	}
	v, ok := q.AsInt64()
	if !ok || v < 0 {
		return 0, fmt.Errorf("size out of range")
	}
	return uint64(v), nil
}

func output(r *probe.Report, format string) error {
	switch strings.ToLower(format) {
	case "text", "":
		fmt.Print(r.String())
		return nil
	case "json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

func dumpMetrics(cfg *cfgapi.Config) error {
	var (
		enabled   = []string{"memory"}
		namespace = defaultNamespace
	)

	if m := cfg.Metrics; m != nil {
		if len(m.Enabled) > 0 {
			enabled = m.Enabled
		}
		if m.Namespace != "" {
			namespace = m.Namespace
		}
	}

	g, err := metrics.NewGatherer(
		metrics.WithNamespace(namespace),
		metrics.WithMetrics(enabled),
	)
	if err != nil {
		return err
	}

	return g.Dump(os.Stdout)
}
