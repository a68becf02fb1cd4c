/*
Copyright © contributors to CloudNativePG, established as
CloudNativePG a Series of LF Projects, LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pgautoctl/pgautoctl/internal/fsm"
)

func TestRegisterNodeUpdatesMetrics(t *testing.T) {
	s := NewStore()

	// A formation name private to this test keeps its gauge/counter
	// label set from colliding with the "default"/0 group other tests
	// in this package register nodes into.
	const formation = "metrics-test-formation"

	before := testutil.ToFloat64(transitionsTotal.WithLabelValues(formation, "0"))

	_, err := s.RegisterNode(formation, 0, "node1", 5432, 100, true)
	require.NoError(t, err)

	after := testutil.ToFloat64(transitionsTotal.WithLabelValues(formation, "0"))
	require.Equal(t, before+1, after, "registering a node must record exactly one transition")

	depth := testutil.ToFloat64(eventJournalDepth.WithLabelValues(formation, "0"))
	require.Equal(t, float64(1), depth)

	singleCount := testutil.ToFloat64(nodeStateTotal.WithLabelValues(formation, "0", string(fsm.Init)))
	require.Equal(t, float64(1), singleCount, "the freshly registered node starts in INIT")
}
