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

// Package native defines the interface to the native memory runtime the
// allocator sits in front of, and provides two implementations of it: a
// cgo CUDA runtime (built with the 'cuda' tag) and a simulated runtime
// which emulates pinned, device and managed memory with ordinary host
// mappings.
//
// A Runtime offers one allocate and one free entry point per memory
// kind, plus a process-wide last error in the style of the CUDA runtime
// API: failing calls record their status, GetLastError returns and
// clears it, PeekAtLastError only returns it.
package native

import (
	"fmt"
	"strings"
	"unsafe"

	logger "github.com/containers/nri-memalloc/pkg/log"
)

// Runtime is the native memory runtime.
type Runtime interface {
	// Name returns the name of the runtime.
	Name() string
	// API returns which native API reports this runtime's statuses.
	API() API

	// HostAlloc allocates ordinary, pageable host memory.
	HostAlloc(size uint64) (unsafe.Pointer, Status)
	// HostFree frees memory allocated by HostAlloc.
	HostFree(ptr unsafe.Pointer) Status
	// PinnedAlloc allocates page-locked host memory.
	PinnedAlloc(size uint64) (unsafe.Pointer, Status)
	// PinnedFree frees memory allocated by PinnedAlloc.
	PinnedFree(ptr unsafe.Pointer) Status
	// DeviceAlloc allocates memory on the current device.
	DeviceAlloc(size uint64) (unsafe.Pointer, Status)
	// DeviceFree frees memory allocated by DeviceAlloc.
	DeviceFree(ptr unsafe.Pointer) Status
	// ManagedAlloc allocates unified memory, addressable from host and device.
	ManagedAlloc(size uint64) (unsafe.Pointer, Status)
	// ManagedFree frees memory allocated by ManagedAlloc.
	ManagedFree(ptr unsafe.Pointer) Status

	// Memcpy copies size bytes from src to dst.
	Memcpy(dst, src unsafe.Pointer, size uint64, kind CopyKind) Status

	// DeviceCount returns the number of devices.
	DeviceCount() (int, Status)
	// SetDevice sets the current device.
	SetDevice(id int) Status
	// Device returns the current device.
	Device() (int, Status)

	// GetLastError returns and clears the last error.
	GetLastError() Status
	// PeekAtLastError returns the last error without clearing it.
	PeekAtLastError() Status
	// ErrorString returns the native description of a status.
	ErrorString(status Status) string

	// Close releases the runtime.
	Close() error
}

// Kind identifies a kind of native memory.
type Kind int

const (
	KindHost    Kind = iota // pageable host memory
	KindPinned              // page-locked host memory
	KindDevice              // device memory
	KindManaged             // unified/managed memory
)

var kindToString = map[Kind]string{
	KindHost:    "host",
	KindPinned:  "pinned",
	KindDevice:  "device",
	KindManaged: "managed",
}

// String returns a string representation of the memory kind.
func (k Kind) String() string {
	if str, ok := kindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("%%!(native:Bad-Kind %d)", k)
}

// CopyKind is the direction of a memory copy.
type CopyKind int

const (
	HostToHost CopyKind = iota
	HostToDevice
	DeviceToHost
	DeviceToDevice
	CopyDefault // direction inferred from the pointers
)

var copyKindToString = map[CopyKind]string{
	HostToHost:     "HostToHost",
	HostToDevice:   "HostToDevice",
	DeviceToHost:   "DeviceToHost",
	DeviceToDevice: "DeviceToDevice",
	CopyDefault:    "Default",
}

// String returns a string representation of the copy kind.
func (k CopyKind) String() string {
	if str, ok := copyKindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("%%!(native:Bad-CopyKind %d)", k)
}

const (
	// RuntimeSimulated is the name of the simulated runtime.
	RuntimeSimulated = "simulated"
	// RuntimeCUDA is the name of the CUDA runtime.
	RuntimeCUDA = "cuda"
	// RuntimeAuto picks CUDA if available, the simulated runtime otherwise.
	RuntimeAuto = "auto"
)

var (
	ErrCUDAUnavailable = fmt.Errorf("native: CUDA runtime not available")
	ErrUnknownRuntime  = fmt.Errorf("native: unknown runtime")
)

var log = logger.Get("native")

// Open opens the named runtime. Simulator options are only used if the
// simulated runtime ends up being opened.
func Open(name string, options ...SimulatorOption) (Runtime, error) {
	switch strings.ToLower(name) {
	case RuntimeSimulated:
		return NewSimulator(options...)
	case RuntimeCUDA:
		return NewCUDA()
	case RuntimeAuto, "":
		rt, err := NewCUDA()
		if err == nil {
			return rt, nil
		}
		log.Info("CUDA runtime not usable (%v), falling back to simulated runtime", err)
		return NewSimulator(options...)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownRuntime, name)
}
