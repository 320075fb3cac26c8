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
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/containers/nri-memalloc/pkg/apis/config/v1alpha1/log"
	"github.com/containers/nri-memalloc/pkg/apis/config/v1alpha1/metrics"
)

const (
	// RuntimeAuto picks the CUDA runtime if available, the simulator otherwise.
	RuntimeAuto = "auto"
	// RuntimeSimulated selects the simulated runtime.
	RuntimeSimulated = "simulated"
	// RuntimeCUDA selects the CUDA runtime.
	RuntimeCUDA = "cuda"
)

// Config provides configuration for a memory allocator.
// +k8s:deepcopy-gen=true
type Config struct {
	// Runtime selects the native memory runtime.
	// +optional
	// +kubebuilder:validation:Enum=auto;simulated;cuda
	// +kubebuilder:default="auto"
	Runtime string `json:"runtime,omitempty"`
	// Simulator configures the simulated runtime.
	// +optional
	Simulator SimulatorConfig `json:"simulator,omitempty"`
	// Log configures logging.
	// +optional
	Log log.Config `json:"log,omitempty"`
	// Metrics configures allocator metrics.
	// +optional
	Metrics *metrics.Config `json:"metrics,omitempty"`
}

// SimulatorConfig configures the simulated runtime.
// +k8s:deepcopy-gen=true
type SimulatorConfig struct {
	// DeviceCapacity is the amount of emulated device memory.
	// +optional
	// +kubebuilder:example="2Gi"
	DeviceCapacity *resource.Quantity `json:"deviceCapacity,omitempty"`
	// Devices is the number of emulated devices.
	// +optional
	// +kubebuilder:validation:Minimum=1
	Devices int `json:"devices,omitempty"`
	// DisableUnified emulates a platform without unified memory support.
	// +optional
	DisableUnified bool `json:"disableUnified,omitempty"`
	// StrictPinning fails pinned allocations which cannot be locked in memory.
	// +optional
	StrictPinning bool `json:"strictPinning,omitempty"`
}

// RuntimeName returns the configured runtime, defaulting to RuntimeAuto.
func (c *Config) RuntimeName() string {
	if c == nil || c.Runtime == "" {
		return RuntimeAuto
	}
	return c.Runtime
}
