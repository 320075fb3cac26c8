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
	"sync"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	cfgapi "github.com/containers/nri-memalloc/pkg/apis/config/v1alpha1/memory"
	"github.com/containers/nri-memalloc/pkg/memory/native"
)

// Allocator allocates memory from the backends of a native runtime.
// It is safe for concurrent use.
type Allocator struct {
	rt      native.Runtime
	ownsRT  bool
	table   *dispatchTable
	errors  errorState
	metrics *allocatorMetrics
	regs    []prometheus.Registerer
}

// AllocatorOption is an opaque option for an Allocator.
type AllocatorOption func(*Allocator) error

// WithRuntime is an option to allocate memory from the given runtime.
// The allocator does not take ownership of the runtime.
func WithRuntime(rt native.Runtime) AllocatorOption {
	return func(a *Allocator) error {
		if rt == nil {
			return fmt.Errorf("nil runtime")
		}
		if a.rt != nil {
			return fmt.Errorf("allocator already has runtime %s", a.rt.Name())
		}
		a.rt = rt
		return nil
	}
}

// WithConfig is an option to open and use the runtime selected by the
// given configuration. The allocator owns the opened runtime.
func WithConfig(cfg *cfgapi.Config) AllocatorOption {
	return func(a *Allocator) error {
		if a.rt != nil {
			return fmt.Errorf("allocator already has runtime %s", a.rt.Name())
		}

		opts, err := SimulatorOptions(cfg)
		if err != nil {
			return err
		}

		rt, err := native.Open(cfg.RuntimeName(), opts...)
		if err != nil {
			return err
		}

		a.rt = rt
		a.ownsRT = true
		return nil
	}
}

// WithMetrics is an option to register the allocator's metrics with the
// given registerer. Metric names are prefixed with "memory_".
func WithMetrics(reg prometheus.Registerer) AllocatorOption {
	return func(a *Allocator) error {
		if reg == nil {
			return fmt.Errorf("nil metrics registerer")
		}
		a.regs = append(a.regs, prometheus.WrapRegistererWithPrefix("memory_", reg))
		return nil
	}
}

// SimulatorOptions returns the simulated runtime options for the given
// configuration.
func SimulatorOptions(cfg *cfgapi.Config) ([]native.SimulatorOption, error) {
	if cfg == nil {
		return nil, nil
	}

	var (
		sim  = &cfg.Simulator
		opts = []native.SimulatorOption{
			native.WithUnified(!sim.DisableUnified),
			native.WithStrictPinning(sim.StrictPinning),
		}
	)

	if q := sim.DeviceCapacity; q != nil {
		capacity, ok := q.AsInt64()
		if !ok || capacity <= 0 {
			return nil, fmt.Errorf("invalid simulated device capacity %s", q.String())
		}
		opts = append(opts, native.WithDeviceCapacity(uint64(capacity)))
	}

	if sim.Devices != 0 {
		opts = append(opts, native.WithDevices(sim.Devices))
	}

	return opts, nil
}

// NewAllocator creates a new allocator instance and configures it with
// the given options. Without a runtime option the allocator uses a new
// simulated runtime.
func NewAllocator(options ...AllocatorOption) (*Allocator, error) {
	a := &Allocator{
		metrics: newAllocatorMetrics(),
	}

	for _, o := range options {
		if err := o(a); err != nil {
			a.closeRuntime()
			return nil, fmt.Errorf("%w: %w", ErrFailedOption, err)
		}
	}

	if a.rt == nil {
		rt, err := native.NewSimulator()
		if err != nil {
			return nil, memoryError("failed to create simulated runtime: %w", err)
		}
		a.rt = rt
		a.ownsRT = true
	}

	a.table = newDispatchTable(a.rt, a.metrics)

	for _, reg := range a.regs {
		if err := reg.Register(a.metrics); err != nil {
			a.unregister()
			a.closeRuntime()
			return nil, memoryError("failed to register metrics: %w", err)
		}
	}

	log.Info("created allocator with %s runtime", a.rt.Name())

	return a, nil
}

// Runtime returns the native runtime of the allocator.
func (a *Allocator) Runtime() native.Runtime {
	return a.rt
}

// Collector returns the prometheus collector for the allocator's metrics.
func (a *Allocator) Collector() prometheus.Collector {
	return a.metrics
}

// Allocate allocates size bytes of memory from the given backend. A zero
// size returns nil without an error. On failure the returned error is
// the translated memory error of the backend and no memory stays
// allocated. Allocate panics for an invalid backend.
func (a *Allocator) Allocate(b Backend, size uint64) (unsafe.Pointer, error) {
	e := a.table.lookup(b)

	if size == 0 {
		return nil, nil
	}

	ptr, status := e.alloc(size)
	if ptr != nil && status.IsSuccess() {
		a.metrics.allocated(b, size)
		logAllocated(b, size, ptr)
		return ptr, nil
	}

	a.recordError(b, status)

	if ptr != nil {
		log.Warn("%s allocation returned %p with status %s, freeing it", b, ptr, status)
		if st := e.free(ptr); !st.IsSuccess() {
			log.Error("failed to free %s memory %p: %s", b, ptr, st)
		}
	}

	err := a.MemoryError(b, size)

	a.metrics.failed(b, err)
	logFailed(b, size, err)

	return nil, err
}

// recordError stores the last error of a failed native call.
func (a *Allocator) recordError(b Backend, status native.Status) {
	if status.IsSuccess() && b.IsDeviceRuntime() {
		status = a.rt.GetLastError()
	}
	if !status.IsSuccess() {
		a.errors.record(b, status)
	}
}

// MemoryError returns the memory error for a failed allocation of size
// bytes from the backend. It consumes the last error recorded for the
// backend, clearing the native runtime's last error for device runtime
// backends. It panics for an invalid backend.
func (a *Allocator) MemoryError(b Backend, size uint64) error {
	a.table.lookup(b)

	status := a.errors.take(b)
	if b.IsDeviceRuntime() {
		if last := a.rt.GetLastError(); status.IsSuccess() {
			status = last
		}
	}

	return a.translate(b, size, status)
}

// GetDeleter returns the deleter for memory allocated from the backend.
// It panics for an invalid backend.
func (a *Allocator) GetDeleter(b Backend) Deleter {
	a.table.lookup(b)
	return Deleter{backend: b, table: a.table}
}

// Copy copies size bytes from src to dst in the given direction.
func (a *Allocator) Copy(dst, src unsafe.Pointer, size uint64, kind native.CopyKind) error {
	if size == 0 {
		return nil
	}

	status := a.rt.Memcpy(dst, src, size, kind)
	if status.IsSuccess() {
		return nil
	}

	a.rt.GetLastError()

	b := GPU
	if kind == native.HostToHost {
		b = Host
	}

	return &BackendError{
		Err:     ErrCopyFailed,
		Backend: b,
		Size:    size,
		API:     a.rt.API(),
		Status:  status,
		Message: a.rt.ErrorString(status),
		Copy:    kind,
	}
}

// DeviceCount returns the number of devices of the runtime.
func (a *Allocator) DeviceCount() (int, error) {
	count, status := a.rt.DeviceCount()
	if !status.IsSuccess() {
		a.rt.GetLastError()
		return 0, memoryError("failed to query device count: %s", status)
	}
	return count, nil
}

// SetDevice sets the current device of the runtime.
func (a *Allocator) SetDevice(id int) error {
	if status := a.rt.SetDevice(id); !status.IsSuccess() {
		a.rt.GetLastError()
		return memoryError("failed to set device %d: %s (%s)", id, status, a.rt.ErrorString(status))
	}
	return nil
}

// LiveAllocations returns the number of outstanding allocations if the
// runtime keeps track of them, or -1 otherwise.
func (a *Allocator) LiveAllocations() int {
	if t, ok := a.rt.(interface{ LiveAllocations() int }); ok {
		return t.LiveAllocations()
	}
	return -1
}

// Close unregisters the allocator's metrics and closes its runtime if the
// allocator opened it. Outstanding allocations of an owned runtime are
// reported as errors.
func (a *Allocator) Close() error {
	a.unregister()

	if !a.ownsRT {
		return nil
	}

	var result *multierror.Error
	if n := a.LiveAllocations(); n > 0 {
		result = multierror.Append(result, memoryError("%d allocation(s) leaked", n))
	}
	if err := a.rt.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func (a *Allocator) unregister() {
	for _, reg := range a.regs {
		reg.Unregister(a.metrics)
	}
}

func (a *Allocator) closeRuntime() {
	if a.ownsRT && a.rt != nil {
		if err := a.rt.Close(); err != nil {
			log.Error("failed to close %s runtime: %v", a.rt.Name(), err)
		}
	}
}

var (
	defaultLock      sync.Mutex
	defaultAllocator *Allocator
)

// Default returns the default allocator, creating one with a simulated
// runtime if necessary.
func Default() *Allocator {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	if defaultAllocator == nil {
		a, err := NewAllocator()
		if err != nil {
			panic(memoryError("failed to create default allocator: %w", err))
		}
		defaultAllocator = a
	}

	return defaultAllocator
}

// SetDefault sets the default allocator, returning the previous one.
func SetDefault(a *Allocator) *Allocator {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	prev := defaultAllocator
	defaultAllocator = a

	return prev
}

// Allocate allocates memory using the default allocator.
func Allocate(b Backend, size uint64) (unsafe.Pointer, error) {
	return Default().Allocate(b, size)
}

// MemoryError returns a memory error using the default allocator.
func MemoryError(b Backend, size uint64) error {
	return Default().MemoryError(b, size)
}

// GetDeleter returns a deleter of the default allocator.
func GetDeleter(b Backend) Deleter {
	return Default().GetDeleter(b)
}

// Copy copies memory using the default allocator.
func Copy(dst, src unsafe.Pointer, size uint64, kind native.CopyKind) error {
	return Default().Copy(dst, src, size, kind)
}
