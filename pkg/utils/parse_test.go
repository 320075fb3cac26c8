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

package utils_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/containers/nri-memalloc/pkg/utils"
)

func TestParseEnabled(t *testing.T) {
	for _, value := range []string{"on", "ON", " true", "yes", "1", "enabled"} {
		enabled, err := utils.ParseEnabled(value)
		require.NoError(t, err, value)
		require.True(t, enabled, value)
	}
	for _, value := range []string{"off", "false", "no", "0", "Disabled "} {
		enabled, err := utils.ParseEnabled(value)
		require.NoError(t, err, value)
		require.False(t, enabled, value)
	}

	_, err := utils.ParseEnabled("maybe")
	require.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	for size, expected := range map[uint64]string{
		0:               "0",
		512:             "512",
		1024:            "1k",
		1 << 20:         "1M",
		3 << 30:         "3G",
		1536:            "1.50k",
		(1 << 20) + 512: "1.00M",
	} {
		require.Equal(t, expected, utils.FormatSize(size))
	}
}
