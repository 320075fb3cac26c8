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

package memory_test

import (
	"math"
	"testing"

	. "github.com/containers/nri-memalloc/pkg/memory"
	"github.com/containers/nri-memalloc/pkg/memory/native"

	"github.com/stretchr/testify/require"
)

func TestAllocUniqueZeroCount(t *testing.T) {
	a, rt := newTestAllocator(t)

	for _, b := range Backends() {
		t.Run(b.String(), func(t *testing.T) {
			var empty Unique[float32]

			u, err := AllocUnique[float32](a, b, 0)
			require.NoError(t, err)
			require.Equal(t, empty, u)
			require.True(t, u.IsEmpty())
			require.Equal(t, BackendCount, u.Backend())
			require.True(t, u.Equal(&empty))
			require.True(t, empty.Equal(&u))
			require.True(t, u.Ptr() == nil)
			require.Equal(t, uint64(0), u.Len())
			require.Equal(t, 0, rt.LiveAllocations())

			u.Reset()
			require.Equal(t, native.StatusSuccess, rt.PeekAtLastError())
		})
	}
}

func TestAllocUnique(t *testing.T) {
	a, rt := newTestAllocator(t)

	for _, b := range Backends() {
		t.Run(b.String(), func(t *testing.T) {
			u, err := AllocUnique[uint64](a, b, 512)
			require.NoError(t, err)
			require.False(t, u.IsEmpty())
			require.Equal(t, b, u.Backend())
			require.Equal(t, uint64(512), u.Len())
			require.Equal(t, uint64(4096), u.Size())
			require.Equal(t, a.GetDeleter(b), u.Deleter())

			if b.IsHostAccessible() {
				s := u.Slice()
				require.Len(t, s, 512)
				s[511] = 0xfeedf00d
				require.Len(t, u.Bytes(), 4096)
			} else {
				require.Panics(t, func() { u.Slice() })
				require.Panics(t, func() { u.Bytes() })
			}

			require.NoError(t, u.Close())
			require.True(t, u.IsEmpty())
			require.Equal(t, 0, rt.LiveAllocations())

			u.Reset()
			require.Equal(t, native.StatusSuccess, rt.PeekAtLastError(), "double free")
		})
	}
}

func TestAllocUniqueOverflow(t *testing.T) {
	a, rt := newTestAllocator(t)

	u, err := AllocUnique[uint64](a, Host, math.MaxUint64)
	require.True(t, IsOutOfMemory(err))
	require.True(t, u.IsEmpty())

	u, err = AllocUnique[uint64](a, GPU, math.MaxUint64/2)
	require.True(t, IsAllocationFailure(err))
	require.True(t, u.IsEmpty())

	u, err = AllocUnique[uint64](a, Pinned, math.MaxUint64/4)
	require.True(t, IsAllocationFailure(err))
	require.True(t, u.IsEmpty())

	require.Equal(t, 0, rt.LiveAllocations())
	require.Equal(t, native.StatusSuccess, rt.PeekAtLastError())
}

func TestAllocUniqueUnsupported(t *testing.T) {
	a, _ := newTestAllocator(t, native.WithUnified(false))

	u, err := AllocUnique[byte](a, Unified, 1)
	require.True(t, IsUnsupported(err))
	require.True(t, u.IsEmpty())
}

func TestUniqueMove(t *testing.T) {
	a, rt := newTestAllocator(t)

	u, err := AllocUnique[int](a, Host, 16)
	require.NoError(t, err)
	ptr := u.Ptr()

	m := u.Move()
	require.True(t, u.IsEmpty())
	require.Equal(t, ptr, m.Ptr())
	require.False(t, u.Equal(&m))

	u.Reset()
	require.Equal(t, 1, rt.LiveAllocations())

	m.Reset()
	require.Equal(t, 0, rt.LiveAllocations())
}

func TestUniqueAssign(t *testing.T) {
	a, rt := newTestAllocator(t)

	u1, err := AllocUnique[byte](a, Pinned, 4096)
	require.NoError(t, err)
	u2, err := AllocUnique[byte](a, GPU, 4096)
	require.NoError(t, err)
	ptr2 := u2.Ptr()

	u1.Assign(&u1)
	require.False(t, u1.IsEmpty())
	require.Equal(t, 2, rt.LiveAllocations())

	u1.Assign(&u2)
	require.Equal(t, 1, rt.LiveAllocations())
	require.True(t, u2.IsEmpty())
	require.Equal(t, ptr2, u1.Ptr())
	require.Equal(t, GPU, u1.Backend())

	u1.Reset()
	require.Equal(t, 0, rt.LiveAllocations())
	require.Equal(t, native.StatusSuccess, rt.PeekAtLastError())
}

func TestUniqueRelease(t *testing.T) {
	a, rt := newTestAllocator(t)

	u, err := AllocUnique[byte](a, GPU, 64)
	require.NoError(t, err)

	ptr, d := u.Release()
	require.True(t, u.IsEmpty())
	require.False(t, ptr == nil)
	require.Equal(t, GPU, d.Backend())

	u.Reset()
	require.Equal(t, 1, rt.LiveAllocations())

	owned := NewUnique[byte](ptr, 64, d)
	require.Equal(t, ptr, owned.Ptr())
	owned.Reset()
	require.Equal(t, 0, rt.LiveAllocations())
}

func TestUniqueShare(t *testing.T) {
	a, rt := newTestAllocator(t)

	u, err := AllocUnique[int32](a, Unified, 8)
	require.NoError(t, err)
	ptr := u.Ptr()

	s := u.Share()
	require.True(t, u.IsEmpty())
	require.Equal(t, ptr, s.Ptr())
	require.Equal(t, uint64(8), s.Len())
	require.Equal(t, int64(1), s.UseCount())

	s.Reset()
	require.Equal(t, 0, rt.LiveAllocations())

	var empty Unique[int32]
	e := empty.Share()
	require.True(t, e.IsEmpty())
}
