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
	"unsafe"

	logger "github.com/containers/nri-memalloc/pkg/log"
)

var (
	log     = logger.Get("memory")
	details = logger.Get("memory-details")
)

func logAllocated(b Backend, size uint64, ptr unsafe.Pointer) {
	if details.DebugEnabled() {
		details.Debug("allocated %d bytes of %s memory at %p", size, b, ptr)
	}
}

func logFailed(b Backend, size uint64, err error) {
	log.Debug("failed to allocate %d bytes of %s memory: %v", size, b, err)
}
