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

package native_test

import (
	"testing"
	"unsafe"

	. "github.com/containers/nri-memalloc/pkg/memory/native"

	"github.com/stretchr/testify/require"
)

func newSimulator(t *testing.T, options ...SimulatorOption) *Simulator {
	rt, err := NewSimulator(options...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	return rt
}

func TestSimulatorAllocFree(t *testing.T) {
	type testCase struct {
		name  string
		kind  Kind
		alloc func(*Simulator, uint64) (unsafe.Pointer, Status)
		free  func(*Simulator, unsafe.Pointer) Status
	}

	for _, tc := range []*testCase{
		{
			name:  "host",
			kind:  KindHost,
			alloc: (*Simulator).HostAlloc,
			free:  (*Simulator).HostFree,
		},
		{
			name:  "pinned",
			kind:  KindPinned,
			alloc: (*Simulator).PinnedAlloc,
			free:  (*Simulator).PinnedFree,
		},
		{
			name:  "device",
			kind:  KindDevice,
			alloc: (*Simulator).DeviceAlloc,
			free:  (*Simulator).DeviceFree,
		},
		{
			name:  "managed",
			kind:  KindManaged,
			alloc: (*Simulator).ManagedAlloc,
			free:  (*Simulator).ManagedFree,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt := newSimulator(t)

			ptr, status := tc.alloc(rt, 4096)
			require.Equal(t, StatusSuccess, status)
			require.False(t, ptr == nil)
			require.Equal(t, 1, rt.LiveAllocations())
			require.Equal(t, uint64(4096), rt.LiveBytes(tc.kind))

			require.Equal(t, StatusSuccess, tc.free(rt, ptr))
			require.Equal(t, 0, rt.LiveAllocations())
			require.Equal(t, StatusSuccess, rt.PeekAtLastError())
		})
		t.Run(tc.name+" zero size", func(t *testing.T) {
			rt := newSimulator(t)

			ptr, status := tc.alloc(rt, 0)
			require.Equal(t, StatusSuccess, status)
			require.True(t, ptr == nil)
			require.Equal(t, 0, rt.LiveAllocations())
			require.Equal(t, StatusSuccess, tc.free(rt, nil))
		})
	}
}

func TestSimulatorLastError(t *testing.T) {
	rt := newSimulator(t, WithDeviceCapacity(1<<20))

	_, status := rt.HostAlloc(^uint64(0))
	require.Equal(t, StatusMemoryAllocation, status)
	require.Equal(t, StatusSuccess, rt.PeekAtLastError(), "host failure touched last error")

	_, status = rt.DeviceAlloc(2 << 20)
	require.Equal(t, StatusMemoryAllocation, status)
	require.Equal(t, StatusMemoryAllocation, rt.PeekAtLastError())
	require.Equal(t, StatusMemoryAllocation, rt.PeekAtLastError(), "peek cleared last error")
	require.Equal(t, StatusMemoryAllocation, rt.GetLastError())
	require.Equal(t, StatusSuccess, rt.GetLastError(), "get did not clear last error")
}

func TestSimulatorDeviceCapacity(t *testing.T) {
	rt := newSimulator(t, WithDeviceCapacity(3*4096))

	a, status := rt.DeviceAlloc(2 * 4096)
	require.Equal(t, StatusSuccess, status)

	_, status = rt.ManagedAlloc(2 * 4096)
	require.Equal(t, StatusMemoryAllocation, status)
	rt.GetLastError()

	b, status := rt.ManagedAlloc(4096)
	require.Equal(t, StatusSuccess, status)

	used, total := rt.DeviceUsage()
	require.Equal(t, uint64(3*4096), used)
	require.Equal(t, uint64(3*4096), total)

	require.Equal(t, StatusSuccess, rt.DeviceFree(a))
	require.Equal(t, StatusSuccess, rt.ManagedFree(b))

	used, _ = rt.DeviceUsage()
	require.Equal(t, uint64(0), used)
}

func TestSimulatorWithoutUnified(t *testing.T) {
	rt := newSimulator(t, WithUnified(false))

	ptr, status := rt.ManagedAlloc(4096)
	require.True(t, ptr == nil)
	require.Equal(t, StatusNotSupported, status)
	require.Equal(t, StatusNotSupported, rt.GetLastError())
}

func TestSimulatorInvalidFree(t *testing.T) {
	rt := newSimulator(t)

	host, status := rt.HostAlloc(4096)
	require.Equal(t, StatusSuccess, status)

	require.Equal(t, StatusInvalidValue, rt.DeviceFree(host))
	require.Equal(t, StatusInvalidValue, rt.GetLastError())
	require.Equal(t, StatusInvalidValue, rt.PinnedFree(host))
	require.Equal(t, StatusInvalidValue, rt.GetLastError())

	require.Equal(t, StatusSuccess, rt.HostFree(host))
	require.Equal(t, StatusInvalidValue, rt.HostFree(host))
	require.Equal(t, StatusSuccess, rt.PeekAtLastError())
}

func TestSimulatorMemcpy(t *testing.T) {
	rt := newSimulator(t)

	src := []byte("hello, device")
	size := uint64(len(src))
	dst := make([]byte, size)

	dev, status := rt.DeviceAlloc(size)
	require.Equal(t, StatusSuccess, status)
	defer rt.DeviceFree(dev)

	require.Equal(t, StatusSuccess, rt.Memcpy(dev, unsafe.Pointer(&src[0]), size, HostToDevice))
	require.Equal(t, StatusSuccess, rt.Memcpy(unsafe.Pointer(&dst[0]), dev, size, DeviceToHost))
	require.Equal(t, src, dst)

	require.Equal(t, StatusInvalidValue,
		rt.Memcpy(unsafe.Pointer(&dst[0]), unsafe.Pointer(&src[0]), size, DeviceToHost))
	rt.GetLastError()

	require.Equal(t, StatusInvalidValue, rt.Memcpy(dev, unsafe.Pointer(&src[0]), size+1, HostToDevice))
	rt.GetLastError()
}

func TestSimulatorDevices(t *testing.T) {
	rt := newSimulator(t, WithDevices(2))

	count, status := rt.DeviceCount()
	require.Equal(t, StatusSuccess, status)
	require.Equal(t, 2, count)

	require.Equal(t, StatusSuccess, rt.SetDevice(1))
	id, _ := rt.Device()
	require.Equal(t, 1, id)

	require.Equal(t, StatusInvalidDevice, rt.SetDevice(2))
	require.Equal(t, StatusInvalidDevice, rt.GetLastError())
}

func TestSimulatorOptions(t *testing.T) {
	_, err := NewSimulator(WithDeviceCapacity(0))
	require.Error(t, err)
	_, err = NewSimulator(WithDevices(0))
	require.Error(t, err)
}

func TestSimulatorCloseReleasesLeaks(t *testing.T) {
	rt, err := NewSimulator()
	require.NoError(t, err)

	_, status := rt.PinnedAlloc(4096)
	require.Equal(t, StatusSuccess, status)
	_, status = rt.DeviceAlloc(4096)
	require.Equal(t, StatusSuccess, status)

	require.Equal(t, 2, rt.LiveAllocations())
	require.NoError(t, rt.Close())
	require.Equal(t, 0, rt.LiveAllocations())
}

func TestOpen(t *testing.T) {
	rt, err := Open(RuntimeSimulated)
	require.NoError(t, err)
	require.Equal(t, RuntimeSimulated, rt.Name())
	require.NoError(t, rt.Close())

	_, err = Open("bogus")
	require.ErrorIs(t, err, ErrUnknownRuntime)
}

func TestStatus(t *testing.T) {
	require.Equal(t, "MemoryAllocation", StatusMemoryAllocation.String())
	require.Equal(t, "out of memory", StatusMemoryAllocation.Message())
	require.Equal(t, "Status(42)", Status(42).String())
	require.True(t, StatusSuccess.IsSuccess())
	require.Equal(t, "device", KindDevice.String())
	require.Equal(t, "HostToDevice", HostToDevice.String())
}
