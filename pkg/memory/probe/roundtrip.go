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

package probe

import (
	"fmt"
	"unsafe"

	"github.com/containers/nri-memalloc/pkg/memory"
	"github.com/containers/nri-memalloc/pkg/memory/native"
)

// RoundTrip fills a Pinned buffer of count values, copies it to the GPU,
// copies it back into a zeroed Host buffer and verifies the result.
func RoundTrip(a *memory.Allocator, count uint64) error {
	pinned, err := memory.AllocUnique[int32](a, memory.Pinned, count)
	if err != nil {
		return err
	}
	defer pinned.Reset()

	gpu, err := memory.AllocUnique[int32](a, memory.GPU, count)
	if err != nil {
		return err
	}
	defer gpu.Reset()

	host, err := memory.AllocUnique[int32](a, memory.Host, count)
	if err != nil {
		return err
	}
	defer host.Reset()

	src := pinned.Slice()
	for i := range src {
		src[i] = int32(i*i + 5)
	}
	dst := host.Slice()
	clear(dst)

	size := count * uint64(unsafe.Sizeof(int32(0)))
	if err := a.Copy(gpu.Ptr(), pinned.Ptr(), size, native.HostToDevice); err != nil {
		return err
	}
	if err := a.Copy(host.Ptr(), gpu.Ptr(), size, native.DeviceToHost); err != nil {
		return err
	}

	for i := range dst {
		if dst[i] != src[i] {
			return fmt.Errorf("round trip mismatch at #%d: %d != %d", i, dst[i], src[i])
		}
	}

	log.Info("round trip of %d values through GPU memory verified", count)

	return nil
}

// WithRoundTrip runs a round trip and records its outcome in the report.
func (r *Report) WithRoundTrip(a *memory.Allocator, count uint64) error {
	err := RoundTrip(a, count)
	if err != nil {
		r.RoundTrip = "failed: " + err.Error()
	} else {
		r.RoundTrip = fmt.Sprintf("ok (%d values)", count)
	}
	return err
}
