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
	"unsafe"
)

// Shared is a reference counted buffer of T. Its zero value is the
// canonical empty buffer. Every handle must be obtained with Clone and
// reset exactly once; the allocation is freed when the last handle is
// reset.
type Shared[T any] struct {
	ctl *control
}

// control is the state shared by all handles of an allocation.
type control struct {
	refs    atomic.Int64
	ptr     unsafe.Pointer
	count   uint64
	deleter Deleter
}

// AllocShared allocates a shared buffer of count elements of T from the
// backend. A zero count returns an empty buffer. On failure the returned
// buffer is empty and the error is that of the failed allocation.
func AllocShared[T any](a *Allocator, b Backend, count uint64) (Shared[T], error) {
	d := a.GetDeleter(b)

	size, ok := byteSize[T](count)
	if !ok {
		return Shared[T]{}, a.overflowError(b)
	}

	ptr, err := a.Allocate(b, size)
	if err != nil {
		return Shared[T]{}, err
	}

	return newShared[T](ptr, count, d), nil
}

func newShared[T any](ptr unsafe.Pointer, count uint64, d Deleter) Shared[T] {
	if ptr == nil {
		return Shared[T]{}
	}

	ctl := &control{
		ptr:     ptr,
		count:   count,
		deleter: d,
	}
	ctl.refs.Store(1)

	return Shared[T]{ctl: ctl}
}

// Clone returns a new handle to the buffer. Cloning an empty buffer
// returns an empty buffer.
func (s *Shared[T]) Clone() Shared[T] {
	if s.ctl == nil {
		return Shared[T]{}
	}
	s.ctl.refs.Add(1)
	return Shared[T]{ctl: s.ctl}
}

// Reset drops this handle's reference, leaving s empty. The allocation is
// freed once its last reference is dropped.
func (s *Shared[T]) Reset() {
	ctl := s.ctl
	if ctl == nil {
		return
	}
	s.ctl = nil

	switch refs := ctl.refs.Add(-1); {
	case refs == 0:
		ctl.deleter.Delete(ctl.ptr)
	case refs < 0:
		panic(memoryError("shared %s buffer %p over-released", ctl.deleter.backend, ctl.ptr))
	}
}

// Assign drops this handle's reference, then makes s another handle of src.
func (s *Shared[T]) Assign(src Shared[T]) {
	if s.ctl == src.ctl {
		return
	}
	s.Reset()
	*s = src.Clone()
}

// UseCount returns the number of handles referring to the allocation.
func (s *Shared[T]) UseCount() int64 {
	if s.ctl == nil {
		return 0
	}
	return s.ctl.refs.Load()
}

// Ptr returns the pointer to the shared allocation, nil if the buffer is empty.
func (s *Shared[T]) Ptr() unsafe.Pointer {
	if s.ctl == nil {
		return nil
	}
	return s.ctl.ptr
}

// Len returns the number of elements in the buffer.
func (s *Shared[T]) Len() uint64 {
	if s.ctl == nil {
		return 0
	}
	return s.ctl.count
}

// Size returns the size of the buffer in bytes.
func (s *Shared[T]) Size() uint64 {
	size, _ := byteSize[T](s.Len())
	return size
}

// Backend returns the backend the buffer was allocated from, or
// BackendCount if the buffer is empty.
func (s *Shared[T]) Backend() Backend {
	if s.IsEmpty() {
		return BackendCount
	}
	return s.ctl.deleter.Backend()
}

// IsEmpty returns true if the buffer refers to no allocation.
func (s *Shared[T]) IsEmpty() bool {
	return s == nil || s.ctl == nil
}

// Equal returns true if both buffers refer to the same allocation. Any two
// empty buffers are equal.
func (s *Shared[T]) Equal(o *Shared[T]) bool {
	var p, q unsafe.Pointer
	if s != nil {
		p = s.Ptr()
	}
	if o != nil {
		q = o.Ptr()
	}
	return p == q
}

// Slice returns a typed view of the buffer. It panics if the memory is not
// accessible by the host.
func (s *Shared[T]) Slice() []T {
	if s.ctl == nil {
		return nil
	}
	return sliceOf[T](s.ctl.ptr, s.ctl.count, s.ctl.deleter.backend)
}

// Bytes returns a byte view of the buffer. It panics if the memory is not
// accessible by the host.
func (s *Shared[T]) Bytes() []byte {
	if s.ctl == nil {
		return nil
	}
	return sliceOf[byte](s.ctl.ptr, s.Size(), s.ctl.deleter.backend)
}

// Close implements io.Closer by resetting the handle.
func (s *Shared[T]) Close() error {
	s.Reset()
	return nil
}
