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

package native

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

const (
	// DefaultDeviceCapacity is the default amount of emulated device memory.
	DefaultDeviceCapacity = uint64(1) << 30

	// largest request we pass on to mmap
	maxMapping = uint64(math.MaxInt)
)

// Simulator is a Runtime which serves every kind of memory from anonymous
// host mappings. Pinned memory is additionally locked with mlock. Device
// and managed memory share an emulated device capacity. Managed memory
// can be disabled to emulate a platform without unified memory support.
type Simulator struct {
	unified        bool
	strictPinning  bool
	deviceCapacity uint64
	devices        int

	mu         sync.Mutex
	regions    map[uintptr]*region
	deviceUsed uint64
	device     int
	lastError  atomic.Int32
}

// region is a single simulated allocation.
type region struct {
	kind   Kind
	mem    []byte
	locked bool
}

// SimulatorOption is an opaque option for a Simulator.
type SimulatorOption func(*Simulator) error

// WithDeviceCapacity sets the amount of emulated device memory.
func WithDeviceCapacity(capacity uint64) SimulatorOption {
	return func(s *Simulator) error {
		if capacity == 0 {
			return fmt.Errorf("native: invalid zero device capacity")
		}
		s.deviceCapacity = capacity
		return nil
	}
}

// WithUnified enables or disables unified (managed) memory support.
func WithUnified(enabled bool) SimulatorOption {
	return func(s *Simulator) error {
		s.unified = enabled
		return nil
	}
}

// WithStrictPinning makes pinned allocations fail if the memory cannot
// be locked. By default the unlocked mapping is handed out instead.
func WithStrictPinning(strict bool) SimulatorOption {
	return func(s *Simulator) error {
		s.strictPinning = strict
		return nil
	}
}

// WithDevices sets the number of emulated devices.
func WithDevices(count int) SimulatorOption {
	return func(s *Simulator) error {
		if count < 1 {
			return fmt.Errorf("native: invalid device count %d", count)
		}
		s.devices = count
		return nil
	}
}

// NewSimulator creates a simulated runtime with the given options.
func NewSimulator(options ...SimulatorOption) (*Simulator, error) {
	s := &Simulator{
		unified:        true,
		deviceCapacity: DefaultDeviceCapacity,
		devices:        1,
		regions:        make(map[uintptr]*region),
	}

	for _, o := range options {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	log.Debug("created simulated runtime: %d device(s), device capacity %d, unified %v",
		s.devices, s.deviceCapacity, s.unified)

	return s, nil
}

func (s *Simulator) Name() string {
	return RuntimeSimulated
}

func (s *Simulator) API() API {
	return RuntimeAPI
}

// HostAlloc behaves like malloc: failures do not touch the last error.
func (s *Simulator) HostAlloc(size uint64) (unsafe.Pointer, Status) {
	if size == 0 {
		return nil, StatusSuccess
	}
	mem, err := mapAnonymous(size)
	if err != nil {
		log.Debug("host allocation of %d bytes failed: %v", size, err)
		return nil, StatusMemoryAllocation
	}
	return s.track(KindHost, mem, false), StatusSuccess
}

func (s *Simulator) HostFree(ptr unsafe.Pointer) Status {
	return s.free(ptr, false, KindHost)
}

func (s *Simulator) PinnedAlloc(size uint64) (unsafe.Pointer, Status) {
	if size == 0 {
		return nil, StatusSuccess
	}
	mem, err := mapAnonymous(size)
	if err != nil {
		log.Debug("pinned allocation of %d bytes failed: %v", size, err)
		return nil, s.fail(StatusMemoryAllocation)
	}

	locked := true
	if err := unix.Mlock(mem); err != nil {
		if s.strictPinning {
			log.Debug("failed to lock %d bytes of pinned memory: %v", size, err)
			if err := unix.Munmap(mem); err != nil {
				log.Error("failed to unmap unlockable pinned memory: %v", err)
			}
			return nil, s.fail(StatusMemoryAllocation)
		}
		log.Debug("pinned memory of %d bytes left unlocked: %v", size, err)
		locked = false
	}

	return s.track(KindPinned, mem, locked), StatusSuccess
}

func (s *Simulator) PinnedFree(ptr unsafe.Pointer) Status {
	return s.free(ptr, true, KindPinned)
}

func (s *Simulator) DeviceAlloc(size uint64) (unsafe.Pointer, Status) {
	return s.deviceAlloc(KindDevice, size)
}

func (s *Simulator) DeviceFree(ptr unsafe.Pointer) Status {
	return s.free(ptr, true, KindDevice, KindManaged)
}

func (s *Simulator) ManagedAlloc(size uint64) (unsafe.Pointer, Status) {
	if size == 0 {
		return nil, StatusSuccess
	}
	if !s.unified {
		return nil, s.fail(StatusNotSupported)
	}
	return s.deviceAlloc(KindManaged, size)
}

func (s *Simulator) ManagedFree(ptr unsafe.Pointer) Status {
	return s.free(ptr, true, KindDevice, KindManaged)
}

func (s *Simulator) deviceAlloc(kind Kind, size uint64) (unsafe.Pointer, Status) {
	if size == 0 {
		return nil, StatusSuccess
	}
	s.mu.Lock()
	if size > s.deviceCapacity-s.deviceUsed {
		s.mu.Unlock()
		log.Debug("%s allocation of %d bytes exceeds free device memory", kind, size)
		return nil, s.fail(StatusMemoryAllocation)
	}
	s.deviceUsed += size
	s.mu.Unlock()

	mem, err := mapAnonymous(size)
	if err != nil {
		s.mu.Lock()
		s.deviceUsed -= size
		s.mu.Unlock()
		log.Debug("%s allocation of %d bytes failed: %v", kind, size, err)
		return nil, s.fail(StatusMemoryAllocation)
	}

	return s.track(kind, mem, false), StatusSuccess
}

func (s *Simulator) track(kind Kind, mem []byte, locked bool) unsafe.Pointer {
	ptr := unsafe.Pointer(&mem[0])

	s.mu.Lock()
	s.regions[uintptr(ptr)] = &region{kind: kind, mem: mem, locked: locked}
	s.mu.Unlock()

	return ptr
}

// free releases the region at ptr if it is of one of the accepted kinds.
// Device runtime frees record failures as the last error.
func (s *Simulator) free(ptr unsafe.Pointer, runtime bool, kinds ...Kind) Status {
	if ptr == nil {
		return StatusSuccess
	}

	s.mu.Lock()
	r, ok := s.regions[uintptr(ptr)]
	if !ok || !r.isKind(kinds...) {
		s.mu.Unlock()
		if runtime {
			return s.fail(StatusInvalidValue)
		}
		return StatusInvalidValue
	}
	delete(s.regions, uintptr(ptr))
	if r.kind == KindDevice || r.kind == KindManaged {
		s.deviceUsed -= uint64(len(r.mem))
	}
	s.mu.Unlock()

	if err := r.unmap(); err != nil {
		log.Error("failed to release %s memory: %v", r.kind, err)
		if runtime {
			return s.fail(StatusUnknown)
		}
		return StatusUnknown
	}

	return StatusSuccess
}

// Memcpy copies between simulated allocations. The device side of a copy
// must be device or managed memory; the host side may be any host memory.
func (s *Simulator) Memcpy(dst, src unsafe.Pointer, size uint64, kind CopyKind) Status {
	if size == 0 {
		return StatusSuccess
	}
	if dst == nil || src == nil || size > maxMapping {
		return s.fail(StatusInvalidValue)
	}

	var dstDevice, srcDevice bool
	switch kind {
	case HostToHost:
	case HostToDevice:
		dstDevice = true
	case DeviceToHost:
		srcDevice = true
	case DeviceToDevice:
		dstDevice, srcDevice = true, true
	case CopyDefault:
	default:
		return s.fail(StatusInvalidValue)
	}

	if !s.checkRange(dst, size, dstDevice) || !s.checkRange(src, size, srcDevice) {
		return s.fail(StatusInvalidValue)
	}

	copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
	return StatusSuccess
}

// checkRange verifies that [ptr, ptr+size) lies in a single allocation which
// is accessible by the given side of a copy. Untracked memory is accepted on
// the host side.
func (s *Simulator) checkRange(ptr unsafe.Pointer, size uint64, device bool) bool {
	addr := uintptr(ptr)

	s.mu.Lock()
	defer s.mu.Unlock()

	for base, r := range s.regions {
		if addr < base || addr >= base+uintptr(len(r.mem)) {
			continue
		}
		if uint64(base+uintptr(len(r.mem))-addr) < size {
			return false
		}
		if device {
			return r.kind == KindDevice || r.kind == KindManaged
		}
		return r.kind != KindDevice
	}

	return !device
}

func (s *Simulator) DeviceCount() (int, Status) {
	return s.devices, StatusSuccess
}

func (s *Simulator) SetDevice(id int) Status {
	if id < 0 || id >= s.devices {
		return s.fail(StatusInvalidDevice)
	}
	s.mu.Lock()
	s.device = id
	s.mu.Unlock()
	return StatusSuccess
}

func (s *Simulator) Device() (int, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device, StatusSuccess
}

func (s *Simulator) GetLastError() Status {
	return Status(s.lastError.Swap(int32(StatusSuccess)))
}

func (s *Simulator) PeekAtLastError() Status {
	return Status(s.lastError.Load())
}

func (s *Simulator) ErrorString(status Status) string {
	return status.Message()
}

// fail records status as the last error and returns it.
func (s *Simulator) fail(status Status) Status {
	s.lastError.Store(int32(status))
	return status
}

// LiveAllocations returns the number of outstanding allocations.
func (s *Simulator) LiveAllocations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regions)
}

// LiveBytes returns the number of outstanding bytes of the given kind.
func (s *Simulator) LiveBytes(kind Kind) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := uint64(0)
	for _, r := range s.regions {
		if r.kind == kind {
			total += uint64(len(r.mem))
		}
	}
	return total
}

// DeviceUsage returns the used and total emulated device memory.
func (s *Simulator) DeviceUsage() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceUsed, s.deviceCapacity
}

// Close releases all outstanding allocations.
func (s *Simulator) Close() error {
	s.mu.Lock()
	regions := s.regions
	s.regions = make(map[uintptr]*region)
	s.deviceUsed = 0
	s.mu.Unlock()

	var result *multierror.Error
	for _, r := range regions {
		if err := r.unmap(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to release %s memory: %w", r.kind, err))
		}
	}

	if len(regions) > 0 {
		log.Warn("released %d leaked simulated allocation(s)", len(regions))
	}

	return result.ErrorOrNil()
}

func (r *region) isKind(kinds ...Kind) bool {
	for _, k := range kinds {
		if r.kind == k {
			return true
		}
	}
	return false
}

func (r *region) unmap() error {
	if r.locked {
		if err := unix.Munlock(r.mem); err != nil {
			log.Warn("failed to unlock %s memory: %v", r.kind, err)
		}
	}
	return unix.Munmap(r.mem)
}

func mapAnonymous(size uint64) ([]byte, error) {
	if size == 0 || size > maxMapping {
		return nil, unix.ENOMEM
	}
	return unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}
