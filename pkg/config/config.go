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

// Package config loads memory allocator configuration from YAML files.
package config

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/containers/nri-memalloc/pkg/apis/config/v1alpha1"
	cfgapi "github.com/containers/nri-memalloc/pkg/apis/config/v1alpha1/memory"
	logger "github.com/containers/nri-memalloc/pkg/log"
)

var log = logger.Get("config")

// Load reads the allocator configuration from the given file.
func Load(path string) (*v1alpha1.MemoryAllocator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration file %q", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid configuration file %q", path)
	}

	log.Info("loaded configuration %q from %s", cfg.Name, path)

	return cfg, nil
}

// Parse parses the given YAML allocator configuration. Unknown fields
// are rejected.
func Parse(data []byte) (*v1alpha1.MemoryAllocator, error) {
	cfg := &v1alpha1.MemoryAllocator{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func Validate(cfg *v1alpha1.MemoryAllocator) error {
	if cfg.APIVersion != "" && cfg.APIVersion != v1alpha1.GroupVersion {
		return errors.Errorf("unsupported apiVersion %q, expected %q",
			cfg.APIVersion, v1alpha1.GroupVersion)
	}
	if cfg.Kind != "" && cfg.Kind != v1alpha1.MemoryAllocatorKind {
		return errors.Errorf("unsupported kind %q, expected %q",
			cfg.Kind, v1alpha1.MemoryAllocatorKind)
	}

	spec := &cfg.Spec.Config
	switch spec.RuntimeName() {
	case cfgapi.RuntimeAuto, cfgapi.RuntimeSimulated, cfgapi.RuntimeCUDA:
	default:
		return errors.Errorf("invalid runtime %q", spec.Runtime)
	}

	sim := &spec.Simulator
	if q := sim.DeviceCapacity; q != nil && q.Sign() <= 0 {
		return errors.Errorf("invalid simulated device capacity %s", q.String())
	}
	if sim.Devices < 0 {
		return errors.Errorf("invalid simulated device count %d", sim.Devices)
	}

	return nil
}

// Marshal returns the YAML representation of the configuration.
func Marshal(cfg *v1alpha1.MemoryAllocator) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal configuration")
	}
	return data, nil
}
