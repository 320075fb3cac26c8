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

// Package memory implements a backend-keyed allocation layer over a native
// memory runtime. The primary interface to the package is the Allocator
// type and the typed ownership wrappers built on top of it.
//
// # Backends
//
// Memory is allocated from one of four backends: ordinary pageable Host
// memory, page-locked Pinned host memory, GPU device memory, and Unified
// memory addressable from both the host and the device. Each backend has
// a native allocate and free entry point. These are collected into a
// dispatch table when an Allocator is created. The table is read-only
// afterwards.
//
// # Allocation and Failures
//
// Allocator.Allocate returns a raw pointer or an error. A zero-size
// request returns a nil pointer and no error. Failures are translated into
// a small error taxonomy: ErrOutOfMemory for Host, ErrUnsupported when the
// platform has no unified memory, and ErrAllocationFailed for every other
// Pinned, GPU or Unified failure. The latter two are wrapped in a
// *BackendError which carries the native status and message.
//
// Failing native calls leave a last error in a per-backend cell. Producing
// the memory error clears both the cell and the native runtime's own last
// error, so successive calls do not see stale errors.
//
// # Ownership
//
// Unique and Shared wrap an allocation together with the Deleter of the
// backend it came from. A Unique buffer has exactly one owner; moving it
// leaves the source empty. Shared buffers are reference counted and the
// allocation is freed when the last handle is reset. The zero value of
// both wrappers is the canonical empty buffer.
//
// Go has no destructors, so owners must release buffers explicitly, for
// instance with a deferred Close or Reset.
package memory
