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
	"fmt"
	"unsafe"

	"github.com/containers/nri-memalloc/pkg/memory/native"
)

// entry is the pair of native calls serving a backend.
type entry struct {
	alloc func(size uint64) (unsafe.Pointer, native.Status)
	free  func(ptr unsafe.Pointer) native.Status
}

// dispatchTable maps backends to their native calls. It is read-only
// once created.
type dispatchTable struct {
	entries [BackendCount]entry
	rt      native.Runtime
	freeLog *freeLogger
	metrics *allocatorMetrics
}

func newDispatchTable(rt native.Runtime, m *allocatorMetrics) *dispatchTable {
	t := &dispatchTable{
		rt:      rt,
		freeLog: newFreeLogger(),
		metrics: m,
	}

	t.entries[Host] = entry{alloc: rt.HostAlloc, free: rt.HostFree}
	t.entries[Pinned] = entry{alloc: rt.PinnedAlloc, free: rt.PinnedFree}
	t.entries[GPU] = entry{alloc: rt.DeviceAlloc, free: rt.DeviceFree}
	t.entries[Unified] = entry{alloc: rt.ManagedAlloc, free: rt.ManagedFree}

	for _, b := range Backends() {
		if e := &t.entries[b]; e.alloc == nil || e.free == nil {
			panic(memoryError("no native calls registered for %s backend", b))
		}
	}

	return t
}

// lookup returns the native calls of the backend. It panics for
// BackendCount and any other invalid backend.
func (t *dispatchTable) lookup(b Backend) *entry {
	if !b.IsValid() {
		panic(fmt.Errorf("%w: no dispatch entry for %s", ErrInvalidBackend, b))
	}
	return &t.entries[b]
}
