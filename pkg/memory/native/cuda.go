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

//go:build linux && cgo && cuda

package native

/*
#cgo LDFLAGS: -lcudart
#include <stdlib.h>
#include <cuda_runtime_api.h>
*/
import "C"

import (
	"unsafe"
)

// CUDA is the Runtime backed by the CUDA runtime library.
type CUDA struct{}

// NewCUDA opens the CUDA runtime. It fails if no usable device is found.
func NewCUDA() (Runtime, error) {
	rt := &CUDA{}

	count, status := rt.DeviceCount()
	if !status.IsSuccess() {
		rt.GetLastError()
		return nil, cudaError(status, rt.ErrorString(status))
	}
	if count == 0 {
		return nil, cudaError(StatusNoDevice, rt.ErrorString(StatusNoDevice))
	}

	log.Info("opened CUDA runtime with %d device(s)", count)

	return rt, nil
}

func (*CUDA) Name() string {
	return RuntimeCUDA
}

func (*CUDA) API() API {
	return RuntimeAPI
}

func (*CUDA) HostAlloc(size uint64) (unsafe.Pointer, Status) {
	if size == 0 {
		return nil, StatusSuccess
	}
	ptr := C.malloc(C.size_t(size))
	if ptr == nil {
		return nil, StatusMemoryAllocation
	}
	return ptr, StatusSuccess
}

func (*CUDA) HostFree(ptr unsafe.Pointer) Status {
	C.free(ptr)
	return StatusSuccess
}

func (*CUDA) PinnedAlloc(size uint64) (unsafe.Pointer, Status) {
	var ptr unsafe.Pointer
	status := Status(C.cudaMallocHost(&ptr, C.size_t(size)))
	return ptr, status
}

func (*CUDA) PinnedFree(ptr unsafe.Pointer) Status {
	return Status(C.cudaFreeHost(ptr))
}

func (*CUDA) DeviceAlloc(size uint64) (unsafe.Pointer, Status) {
	var ptr unsafe.Pointer
	status := Status(C.cudaMalloc(&ptr, C.size_t(size)))
	return ptr, status
}

func (*CUDA) DeviceFree(ptr unsafe.Pointer) Status {
	return Status(C.cudaFree(ptr))
}

func (*CUDA) ManagedAlloc(size uint64) (unsafe.Pointer, Status) {
	var ptr unsafe.Pointer
	status := Status(C.cudaMallocManaged(&ptr, C.size_t(size), C.cudaMemAttachGlobal))
	return ptr, status
}

func (*CUDA) ManagedFree(ptr unsafe.Pointer) Status {
	return Status(C.cudaFree(ptr))
}

func (*CUDA) Memcpy(dst, src unsafe.Pointer, size uint64, kind CopyKind) Status {
	return Status(C.cudaMemcpy(dst, src, C.size_t(size), C.enum_cudaMemcpyKind(kind)))
}

func (*CUDA) DeviceCount() (int, Status) {
	var count C.int
	status := Status(C.cudaGetDeviceCount(&count))
	return int(count), status
}

func (*CUDA) SetDevice(id int) Status {
	return Status(C.cudaSetDevice(C.int(id)))
}

func (*CUDA) Device() (int, Status) {
	var id C.int
	status := Status(C.cudaGetDevice(&id))
	return int(id), status
}

func (*CUDA) GetLastError() Status {
	return Status(C.cudaGetLastError())
}

func (*CUDA) PeekAtLastError() Status {
	return Status(C.cudaPeekAtLastError())
}

func (*CUDA) ErrorString(status Status) string {
	return C.GoString(C.cudaGetErrorString(C.cudaError_t(status)))
}

func (*CUDA) Close() error {
	return nil
}
