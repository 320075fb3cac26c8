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
	"errors"
	"fmt"

	"github.com/containers/nri-memalloc/pkg/memory/native"
)

var (
	ErrOutOfMemory      = fmt.Errorf("memory: out of memory")
	ErrAllocationFailed = fmt.Errorf("memory: allocation failed")
	ErrUnsupported      = fmt.Errorf("memory: not supported")
	ErrInvalidBackend   = fmt.Errorf("memory: invalid backend")
	ErrCopyFailed       = fmt.Errorf("memory: copy failed")
	ErrFailedOption     = fmt.Errorf("memory: failed to apply option")
)

// BackendError describes a failed native call of a device runtime backend.
type BackendError struct {
	Err     error           // ErrAllocationFailed, ErrUnsupported, or ErrCopyFailed
	Backend Backend         // backend of the failed call
	Size    uint64          // requested size in bytes
	API     native.API      // native API reporting the failure
	Status  native.Status   // native status code
	Message string          // native description of Status
	Copy    native.CopyKind // direction of a failed copy
}

// Error returns the error message.
func (e *BackendError) Error() string {
	if errors.Is(e.Err, ErrCopyFailed) {
		return fmt.Sprintf("%v: %s copy of %d bytes: %s error %d (%s): %s",
			e.Err, e.Copy, e.Size, e.API, int(e.Status), e.Status, e.Message)
	}
	return fmt.Sprintf("%v: %s allocation of %d bytes: %s error %d (%s): %s",
		e.Err, e.Backend, e.Size, e.API, int(e.Status), e.Status, e.Message)
}

// Unwrap returns the error taxonomy sentinel of the error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies errors by the error taxonomy.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindOutOfMemory
	KindAllocationFailure
	KindUnsupported
	KindOther
)

var errorKindToString = map[ErrorKind]string{
	KindNone:              "none",
	KindOutOfMemory:       "out-of-memory",
	KindAllocationFailure: "allocation-failure",
	KindUnsupported:       "unsupported",
	KindOther:             "other",
}

// String returns a string representation of the error kind.
func (k ErrorKind) String() string {
	if str, ok := errorKindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("%%!(memory:Bad-ErrorKind %d)", k)
}

// Classify returns the kind of the given error.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrOutOfMemory):
		return KindOutOfMemory
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrAllocationFailed):
		return KindAllocationFailure
	}
	return KindOther
}

// IsOutOfMemory returns true if err is a Host out of memory error.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfMemory)
}

// IsAllocationFailure returns true if err is a device runtime allocation failure.
func IsAllocationFailure(err error) bool {
	return errors.Is(err, ErrAllocationFailed)
}

// IsUnsupported returns true if err indicates missing unified memory support.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

func memoryError(format string, args ...interface{}) error {
	return fmt.Errorf("memory: "+format, args...)
}
