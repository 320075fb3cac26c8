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
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/time/rate"

	"github.com/containers/nri-memalloc/pkg/memory/native"
)

// Deleter frees allocations of a single backend. Deleters are comparable
// values: deleters of the same backend and allocator are equal. The zero
// Deleter can only be used to delete nil.
type Deleter struct {
	backend Backend
	table   *dispatchTable
}

// Backend returns the backend the deleter frees memory of.
func (d Deleter) Backend() Backend {
	return d.backend
}

// IsZero returns true for the zero Deleter.
func (d Deleter) IsZero() bool {
	return d.table == nil
}

// Delete frees the allocation at ptr. Deleting nil is a no-op. Native
// failures are logged and counted but not returned.
func (d Deleter) Delete(ptr unsafe.Pointer) {
	d.Free(ptr)
}

// Free is Delete returning the native status of the free. Freeing nil
// returns success. A failed free consumes the native last error it
// raised, so the returned status is the only record of the failure.
func (d Deleter) Free(ptr unsafe.Pointer) native.Status {
	if ptr == nil {
		return native.StatusSuccess
	}

	if d.table == nil {
		panic(memoryError("zero deleter used to free %p", ptr))
	}

	status := d.table.lookup(d.backend).free(ptr)
	if status.IsSuccess() {
		d.table.metrics.freed(d.backend)
		return status
	}

	if d.backend.IsDeviceRuntime() {
		d.table.rt.GetLastError()
	}

	d.table.metrics.freeFailed(d.backend)
	d.table.freeLog.report(d.backend, ptr, status, d.table.rt)

	return status
}

const (
	// at most this many free failures are logged per second
	freeLogRate = 1
	// with this many logged in a burst
	freeLogBurst = 5
)

// freeLogger rate-limits logging of native free failures.
type freeLogger struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

func newFreeLogger() *freeLogger {
	return &freeLogger{
		limiter: rate.NewLimiter(rate.Every(time.Second/freeLogRate), freeLogBurst),
	}
}

func (l *freeLogger) report(b Backend, ptr unsafe.Pointer, status native.Status, rt native.Runtime) {
	if !l.limiter.Allow() {
		l.suppressed.Add(1)
		return
	}

	if n := l.suppressed.Swap(0); n > 0 {
		log.Warn("%d native free failure(s) suppressed", n)
	}

	log.Error("failed to free %s memory %p: %s (%s)", b, ptr, status, rt.ErrorString(status))
}
