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

package memory_test

import (
	"encoding/json"
	"errors"
	"testing"

	. "github.com/containers/nri-memalloc/pkg/memory"

	"github.com/stretchr/testify/require"
)

func TestBackends(t *testing.T) {
	type testCase struct {
		name    string
		backend Backend
		host    bool
		device  bool
		aliases []string
	}

	for _, tc := range []*testCase{
		{
			name:    "Host",
			backend: Host,
			host:    true,
			aliases: []string{"host", "HOST"},
		},
		{
			name:    "Pinned",
			backend: Pinned,
			host:    true,
			device:  true,
			aliases: []string{"pinned"},
		},
		{
			name:    "GPU",
			backend: GPU,
			device:  true,
			aliases: []string{"gpu", "device"},
		},
		{
			name:    "Unified",
			backend: Unified,
			host:    true,
			device:  true,
			aliases: []string{"unified", "managed"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.name, tc.backend.String())
			require.True(t, tc.backend.IsValid())
			require.Equal(t, tc.host, tc.backend.IsHostAccessible())
			require.Equal(t, tc.device, tc.backend.IsDeviceRuntime())
			require.Equal(t, tc.backend, MustParseBackend(tc.name))
			for _, alias := range tc.aliases {
				b, err := ParseBackend(alias)
				require.NoError(t, err)
				require.Equal(t, tc.backend, b)
			}
		})
		t.Run(tc.name+" JSON", func(t *testing.T) {
			data, err := json.Marshal(tc.backend)
			require.NoError(t, err)
			require.Equal(t, `"`+tc.name+`"`, string(data))

			var b Backend
			require.NoError(t, json.Unmarshal(data, &b))
			require.Equal(t, tc.backend, b)
		})
	}

	require.Equal(t, []Backend{Host, Pinned, GPU, Unified}, Backends())
	require.Len(t, Backends(), int(BackendCount))
}

func TestInvalidBackend(t *testing.T) {
	require.False(t, BackendCount.IsValid())
	require.False(t, Backend(-1).IsValid())
	require.Equal(t, "%!(memory:Bad-Backend 4)", BackendCount.String())

	_, err := ParseBackend("tape")
	require.ErrorIs(t, err, ErrInvalidBackend)
	require.Panics(t, func() { MustParseBackend("tape") })

	_, err = json.Marshal(BackendCount)
	require.Error(t, err)

	var b Backend
	require.ErrorIs(t, json.Unmarshal([]byte(`7`), &b), ErrInvalidBackend)
	require.ErrorIs(t, json.Unmarshal([]byte(`"tape"`), &b), ErrInvalidBackend)
	require.NoError(t, json.Unmarshal([]byte(`2`), &b))
	require.Equal(t, GPU, b)
}

func TestClassify(t *testing.T) {
	berr := &BackendError{Err: ErrAllocationFailed, Backend: GPU, Size: 1}

	require.Equal(t, KindNone, Classify(nil))
	require.Equal(t, KindOutOfMemory, Classify(ErrOutOfMemory))
	require.Equal(t, KindAllocationFailure, Classify(berr))
	require.Equal(t, KindUnsupported, Classify(&BackendError{Err: ErrUnsupported, Backend: Unified}))
	require.Equal(t, KindOther, Classify(errors.New("boom")))
	require.Equal(t, KindOther, Classify(ErrCopyFailed))
	require.Equal(t, "allocation-failure", KindAllocationFailure.String())

	require.True(t, errors.Is(berr, ErrAllocationFailed))
	require.Contains(t, berr.Error(), "GPU allocation of 1 bytes")
}
