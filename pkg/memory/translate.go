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
	"math"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/containers/nri-memalloc/pkg/memory/native"
)

// errorState holds the last native error per backend.
type errorState struct {
	cells [BackendCount]atomic.Int32
}

// record stores status as the last error of the backend.
func (s *errorState) record(b Backend, status native.Status) {
	s.cells[b].Store(int32(status))
}

// take returns and clears the last error of the backend.
func (s *errorState) take(b Backend) native.Status {
	return native.Status(s.cells[b].Swap(int32(native.StatusSuccess)))
}

// peek returns the last error of the backend.
func (s *errorState) peek(b Backend) native.Status {
	return native.Status(s.cells[b].Load())
}

// translate maps a native failure of the backend to an allocation error.
func (a *Allocator) translate(b Backend, size uint64, status native.Status) error {
	if b == Host {
		return fmt.Errorf("%w: failed to allocate %d bytes of Host memory", ErrOutOfMemory, size)
	}

	if status.IsSuccess() {
		status = native.StatusMemoryAllocation
	}

	err := ErrAllocationFailed
	if b == Unified && status == native.StatusNotSupported {
		err = ErrUnsupported
	}

	return &BackendError{
		Err:     err,
		Backend: b,
		Size:    size,
		API:     a.rt.API(),
		Status:  status,
		Message: a.rt.ErrorString(status),
	}
}

// overflowError returns the error for a request whose byte size does not
// fit in 64 bits. No native call is made.
func (a *Allocator) overflowError(b Backend) error {
	err := a.translate(b, math.MaxUint64, native.StatusMemoryAllocation)
	a.metrics.failed(b, err)
	logFailed(b, math.MaxUint64, err)
	return err
}

// byteSize returns the size of count elements of T, and false if the
// size overflows.
func byteSize[T any](count uint64) (uint64, bool) {
	var zero T
	hi, lo := bits.Mul64(count, uint64(unsafe.Sizeof(zero)))
	return lo, hi == 0
}
