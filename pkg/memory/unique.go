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
)

// Unique is a buffer of T with a single owner. Its zero value is the
// canonical empty buffer. Unique buffers must not be copied; use Move
// to transfer ownership.
type Unique[T any] struct {
	ptr     unsafe.Pointer
	count   uint64
	deleter Deleter
}

// AllocUnique allocates a buffer of count elements of T from the backend.
// A zero count returns the zero Unique. On failure the returned buffer is
// empty and the error is that of the failed allocation.
func AllocUnique[T any](a *Allocator, b Backend, count uint64) (Unique[T], error) {
	d := a.GetDeleter(b)

	size, ok := byteSize[T](count)
	if !ok {
		return Unique[T]{}, a.overflowError(b)
	}

	ptr, err := a.Allocate(b, size)
	if err != nil {
		return Unique[T]{}, err
	}

	if ptr == nil {
		return Unique[T]{}, nil
	}

	return Unique[T]{ptr: ptr, count: count, deleter: d}, nil
}

// NewUnique takes ownership of an allocation of count elements of T which
// is freed with the given deleter.
func NewUnique[T any](ptr unsafe.Pointer, count uint64, d Deleter) Unique[T] {
	if ptr == nil {
		return Unique[T]{}
	}
	return Unique[T]{ptr: ptr, count: count, deleter: d}
}

// Ptr returns the pointer to the owned allocation, nil if the buffer is empty.
func (u *Unique[T]) Ptr() unsafe.Pointer {
	return u.ptr
}

// Len returns the number of elements in the buffer.
func (u *Unique[T]) Len() uint64 {
	return u.count
}

// Size returns the size of the buffer in bytes.
func (u *Unique[T]) Size() uint64 {
	size, _ := byteSize[T](u.count)
	return size
}

// Backend returns the backend the buffer was allocated from, or
// BackendCount if the buffer is empty.
func (u *Unique[T]) Backend() Backend {
	if u.IsEmpty() {
		return BackendCount
	}
	return u.deleter.Backend()
}

// Deleter returns the deleter bound to the buffer.
func (u *Unique[T]) Deleter() Deleter {
	return u.deleter
}

// IsEmpty returns true if the buffer owns no allocation.
func (u *Unique[T]) IsEmpty() bool {
	return u == nil || u.ptr == nil
}

// Equal returns true if both buffers refer to the same allocation. Any two
// empty buffers are equal.
func (u *Unique[T]) Equal(o *Unique[T]) bool {
	var p, q unsafe.Pointer
	if u != nil {
		p = u.ptr
	}
	if o != nil {
		q = o.ptr
	}
	return p == q
}

// Slice returns a typed view of the buffer. It panics if the memory is not
// accessible by the host.
func (u *Unique[T]) Slice() []T {
	return sliceOf[T](u.ptr, u.count, u.deleter.backend)
}

// Bytes returns a byte view of the buffer. It panics if the memory is not
// accessible by the host.
func (u *Unique[T]) Bytes() []byte {
	return sliceOf[byte](u.ptr, u.Size(), u.deleter.backend)
}

// Move transfers ownership to the returned buffer, leaving u empty.
func (u *Unique[T]) Move() Unique[T] {
	m := *u
	*u = Unique[T]{}
	return m
}

// Reset frees the owned allocation, if any, leaving u empty.
func (u *Unique[T]) Reset() {
	ptr, d := u.ptr, u.deleter
	*u = Unique[T]{}
	d.Delete(ptr)
}

// Assign frees the owned allocation, if any, then takes ownership of the
// allocation of src, leaving src empty.
func (u *Unique[T]) Assign(src *Unique[T]) {
	if u == src {
		return
	}
	u.Reset()
	*u = src.Move()
}

// Release gives up ownership of the allocation without freeing it. The
// caller becomes responsible for freeing ptr with the returned deleter.
func (u *Unique[T]) Release() (unsafe.Pointer, Deleter) {
	ptr, d := u.ptr, u.deleter
	*u = Unique[T]{}
	return ptr, d
}

// Share converts the buffer into a shared one, leaving u empty.
func (u *Unique[T]) Share() Shared[T] {
	count := u.count
	ptr, d := u.Release()
	return newShared[T](ptr, count, d)
}

// Close implements io.Closer by resetting the buffer.
func (u *Unique[T]) Close() error {
	u.Reset()
	return nil
}

func sliceOf[T any](ptr unsafe.Pointer, count uint64, b Backend) []T {
	if ptr == nil {
		return nil
	}
	if !b.IsHostAccessible() {
		panic(memoryError("%s memory is not accessible by the host", b))
	}
	return unsafe.Slice((*T)(ptr), count)
}
