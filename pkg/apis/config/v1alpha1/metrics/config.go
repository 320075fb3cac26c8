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

package metrics

// Config provides configuration for metrics collection.
// +k8s:deepcopy-gen=true
type Config struct {
	// Enabled lists the metrics groups or collectors to enable. Entries
	// are glob patterns matched against the group, the collector name, or
	// the group/collector combination.
	// +optional
	// +kubebuilder:example={"memory"}
	Enabled []string `json:"enabled,omitempty"`
	// Polled lists the collectors to force into polled mode.
	// +optional
	Polled []string `json:"polled,omitempty"`
	// Namespace is the common prefix of all exported metrics.
	// +optional
	// +kubebuilder:default="nri"
	Namespace string `json:"namespace,omitempty"`
}
