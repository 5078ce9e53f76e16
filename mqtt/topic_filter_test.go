// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTopicFilterMatch(t *testing.T) {
	for _, tc := range []struct {
		filter, name string
		match        bool
	}{
		{"kopi/greenbeans/data", "kopi/greenbeans/data", true},
		{"kopi/greenbeans/data", "kopi/greenbeans/prediction", false},
		{"kopi/greenbeans/+", "kopi/greenbeans/prediction", true},
		{"kopi/+/data", "kopi/greenbeans/data", true},
		{"kopi/#", "kopi/greenbeans/data", true},
		{"#", "kopi", true},
		{"kopi/greenbeans", "kopi/greenbeans/data", false},
		{"kopi/greenbeans/data/extra", "kopi/greenbeans/data", false},
		{"kopi/+", "kopi", false},
	} {
		require.Equal(t, tc.match, IsTopicFilterMatch(tc.filter, tc.name),
			"%s vs %s", tc.filter, tc.name)
	}
}
