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

package probe_test

import (
	"testing"
	"unsafe"

	"github.com/containers/nri-memalloc/pkg/memory"
	"github.com/containers/nri-memalloc/pkg/memory/native"
	. "github.com/containers/nri-memalloc/pkg/memory/probe"

	"github.com/stretchr/testify/require"
)

func newAllocator(t *testing.T, options ...native.SimulatorOption) (*memory.Allocator, *native.Simulator) {
	rt, err := native.NewSimulator(options...)
	require.NoError(t, err)

	a, err := memory.NewAllocator(memory.WithRuntime(rt))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, a.Close())
		require.Equal(t, 0, rt.LiveAllocations())
		require.NoError(t, rt.Close())
	})

	return a, rt
}

func TestRun(t *testing.T) {
	a, _ := newAllocator(t)

	r := Run(a, 1<<20)
	require.Equal(t, native.RuntimeSimulated, r.Runtime)
	require.Len(t, r.Results, len(memory.Backends()))
	require.False(t, r.Failed())

	for _, b := range memory.Backends() {
		res, ok := r.Result(b)
		require.True(t, ok)
		require.True(t, res.Supported, "%s", b)
		require.True(t, res.FreeClean, "%s", b)
		require.Empty(t, res.Error)
	}

	require.Contains(t, r.String(), "Unified")
}

// doubleFreeRuntime frees pinned memory twice, failing the second free.
type doubleFreeRuntime struct {
	*native.Simulator
}

func (r doubleFreeRuntime) PinnedFree(ptr unsafe.Pointer) native.Status {
	r.Simulator.PinnedFree(ptr)
	return r.Simulator.PinnedFree(ptr)
}

func TestRunFailingFree(t *testing.T) {
	sim, err := native.NewSimulator()
	require.NoError(t, err)
	defer sim.Close()

	a, err := memory.NewAllocator(memory.WithRuntime(doubleFreeRuntime{sim}))
	require.NoError(t, err)
	defer a.Close()

	r := Run(a, 1<<20)
	require.True(t, r.Failed())

	res, ok := r.Result(memory.Pinned)
	require.True(t, ok)
	require.True(t, res.Supported)
	require.False(t, res.FreeClean)
	require.Equal(t, native.StatusInvalidValue, res.Status)

	for _, b := range []memory.Backend{memory.Host, memory.GPU, memory.Unified} {
		res, ok := r.Result(b)
		require.True(t, ok)
		require.True(t, res.FreeClean, "%s", b)
	}

	require.Contains(t, r.String(), "free failed")
	require.Equal(t, 0, sim.LiveAllocations())
	require.Equal(t, native.StatusSuccess, sim.PeekAtLastError())
}

func TestRunWithoutUnified(t *testing.T) {
	a, _ := newAllocator(t, native.WithUnified(false))

	r := Run(a, 4096)
	require.False(t, r.Failed())

	res, ok := r.Result(memory.Unified)
	require.True(t, ok)
	require.False(t, res.Supported)
	require.Equal(t, memory.KindUnsupported, res.Kind)
	require.Equal(t, native.StatusNotSupported, res.Status)
	require.Contains(t, r.String(), "unsupported")
}

func TestRunExhaustedDevice(t *testing.T) {
	a, _ := newAllocator(t, native.WithDeviceCapacity(1<<20))

	r := Run(a, 2<<20)
	require.True(t, r.Failed())

	res, _ := r.Result(memory.GPU)
	require.True(t, res.Supported)
	require.Equal(t, memory.KindAllocationFailure, res.Kind)
	require.Equal(t, native.StatusMemoryAllocation, res.Status)

	res, _ = r.Result(memory.Host)
	require.Empty(t, res.Error)
}

func TestRoundTrip(t *testing.T) {
	a, rt := newAllocator(t)

	require.NoError(t, RoundTrip(a, 4096))
	require.Equal(t, 0, rt.LiveAllocations())

	r := Run(a, 4096)
	require.NoError(t, r.WithRoundTrip(a, 16))
	require.Contains(t, r.String(), "round trip: ok")
}

func TestRoundTripFailure(t *testing.T) {
	a, rt := newAllocator(t, native.WithDeviceCapacity(4096))

	err := RoundTrip(a, 4096)
	require.True(t, memory.IsAllocationFailure(err))
	require.Equal(t, 0, rt.LiveAllocations())
}
