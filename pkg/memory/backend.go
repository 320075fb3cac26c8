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
	"encoding/json"
	"fmt"
	"strings"
)

// Backend identifies a memory backend.
type Backend int

const (
	Host         Backend = iota // pageable host memory
	Pinned                      // page-locked host memory
	GPU                         // device memory
	Unified                     // unified memory
	BackendCount                // number of backends, not allocatable
)

var (
	backendToString = map[Backend]string{
		Host:    "Host",
		Pinned:  "Pinned",
		GPU:     "GPU",
		Unified: "Unified",
	}
	stringToBackend = map[string]Backend{
		"HOST":    Host,
		"PINNED":  Pinned,
		"GPU":     GPU,
		"DEVICE":  GPU,
		"UNIFIED": Unified,
		"MANAGED": Unified,
	}
)

// Backends returns all allocatable backends.
func Backends() []Backend {
	return []Backend{Host, Pinned, GPU, Unified}
}

// ParseBackend parses the given string into a backend.
func ParseBackend(str string) (Backend, error) {
	if b, ok := stringToBackend[strings.ToUpper(str)]; ok {
		return b, nil
	}

	return BackendCount, fmt.Errorf("%w: %q", ErrInvalidBackend, str)
}

// MustParseBackend parses the given string into a backend.
// It panics on failure.
func MustParseBackend(str string) Backend {
	b, err := ParseBackend(str)
	if err == nil {
		return b
	}

	panic(err)
}

// IsValid returns true if the backend is allocatable.
func (b Backend) IsValid() bool {
	return b >= Host && b < BackendCount
}

// IsHostAccessible returns true if the host can directly access memory
// allocated from the backend.
func (b Backend) IsHostAccessible() bool {
	return b == Host || b == Pinned || b == Unified
}

// IsDeviceRuntime returns true if the backend is served by the device
// runtime, IOW its failures carry a native runtime status.
func (b Backend) IsDeviceRuntime() bool {
	return b == Pinned || b == GPU || b == Unified
}

// String returns a string representation of the backend.
func (b Backend) String() string {
	if str, ok := backendToString[b]; ok {
		return str
	}

	return fmt.Sprintf("%%!(memory:Bad-Backend %d)", b)
}

// MarshalJSON is the json.Marshaller for Backend.
func (b Backend) MarshalJSON() ([]byte, error) {
	if !b.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBackend, b)
	}
	return json.Marshal(b.String())
}

// UnmarshalJSON is the json.Unmarshaller for Backend.
func (b *Backend) UnmarshalJSON(data []byte) error {
	i := 0
	if err := json.Unmarshal(data, &i); err == nil {
		if Backend(i).IsValid() {
			*b = Backend(i)
			return nil
		}
		return fmt.Errorf("%w: %d", ErrInvalidBackend, i)
	}

	str := ""
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBackend, err)
	}

	parsed, err := ParseBackend(str)
	if err != nil {
		return err
	}

	*b = parsed
	return nil
}
