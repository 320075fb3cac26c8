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
)

// Status is a native status code. Values follow the CUDA runtime API.
type Status int

const (
	StatusSuccess             Status = 0
	StatusInvalidValue        Status = 1
	StatusMemoryAllocation    Status = 2
	StatusInitializationError Status = 3
	StatusNoDevice            Status = 100
	StatusInvalidDevice       Status = 101
	StatusNotSupported        Status = 801
	StatusUnknown             Status = 999
)

var statusNames = map[Status]string{
	StatusSuccess:             "Success",
	StatusInvalidValue:        "InvalidValue",
	StatusMemoryAllocation:    "MemoryAllocation",
	StatusInitializationError: "InitializationError",
	StatusNoDevice:            "NoDevice",
	StatusInvalidDevice:       "InvalidDevice",
	StatusNotSupported:        "NotSupported",
	StatusUnknown:             "Unknown",
}

var statusMessages = map[Status]string{
	StatusSuccess:             "no error",
	StatusInvalidValue:        "invalid argument",
	StatusMemoryAllocation:    "out of memory",
	StatusInitializationError: "initialization error",
	StatusNoDevice:            "no CUDA-capable device is detected",
	StatusInvalidDevice:       "invalid device ordinal",
	StatusNotSupported:        "operation not supported",
	StatusUnknown:             "unknown error",
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// String returns the symbolic name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Message returns the built-in description of the status.
func (s Status) Message() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unrecognized error code %d", int(s))
}

// API identifies the native API a status originates from.
type API int

const (
	RuntimeAPI API = iota
	DriverAPI
)

// String returns a string representation of the API.
func (a API) String() string {
	switch a {
	case RuntimeAPI:
		return "runtime"
	case DriverAPI:
		return "driver"
	}
	return fmt.Sprintf("%%!(native:Bad-API %d)", int(a))
}
