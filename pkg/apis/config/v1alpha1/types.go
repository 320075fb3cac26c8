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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/containers/nri-memalloc/pkg/apis/config/v1alpha1/memory"
)

const (
	// GroupVersion is the API group and version of our configuration.
	GroupVersion = "config.nri/v1alpha1"
	// MemoryAllocatorKind is the kind of a memory allocator configuration.
	MemoryAllocatorKind = "MemoryAllocator"
)

// MemoryAllocator represents the configuration of a memory allocator.
// +kubebuilder:object:root=true
type MemoryAllocator struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec MemoryAllocatorSpec `json:"spec"`
}

// MemoryAllocatorSpec describes a memory allocator.
type MemoryAllocatorSpec struct {
	memory.Config `json:",inline"`
}

// AllocatorConfig returns the allocator configuration.
func (m *MemoryAllocator) AllocatorConfig() *memory.Config {
	if m == nil {
		return nil
	}
	return &m.Spec.Config
}
