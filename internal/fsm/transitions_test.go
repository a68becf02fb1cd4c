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

package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLegal(t *testing.T) {
	cases := []struct {
		name   string
		from   NodeState
		to     NodeState
		wantOK bool
	}{
		{"bootstrap single", Init, Single, true},
		{"bootstrap standby", Init, WaitStandby, true},
		{"promotion path step 1", Secondary, PreparePromotion, true},
		{"promotion path step 2", PreparePromotion, StopReplication, true},
		{"promotion path step 3", StopReplication, WaitPrimary, true},
		{"maintenance entry", Secondary, PrepareMaintenance, true},
		{"unlisted pair is rejected", Init, Primary, false},
		{"reversed legal pair is still rejected", Single, Init, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantOK, IsLegal(tc.from, tc.to))
		})
	}
}

func TestActionsAreIdempotentByConstruction(t *testing.T) {
	// No action in the table may be a one-shot "do X then assert"
	// step; this checks the table against a list of such names that
	// can't be safely repeated.
	forbidden := map[Action]bool{
		"assert_primary": true,
		"do_promote":     true,
	}

	for transition, actions := range table {
		for _, a := range actions {
			assert.Falsef(t, forbidden[a], "transition %v contains a non-idempotent action name %q", transition, a)
		}
	}
}

func TestVerifyReachability(t *testing.T) {
	require.NoError(t, VerifyReachability())
}

func TestWritableStatesMatchAtMostOnePrimaryRule(t *testing.T) {
	// The writable set is exactly SINGLE, PRIMARY, WAIT_PRIMARY,
	// JOIN_PRIMARY, APPLY_SETTINGS.
	want := []NodeState{Single, Primary, WaitPrimary, JoinPrimary, ApplySettings}
	for _, s := range want {
		assert.Truef(t, s.IsWritable(), "%s should be a writable state", s)
	}

	notWant := []NodeState{Init, Secondary, CatchingUp, Maintenance, Demoted}
	for _, s := range notWant {
		assert.Falsef(t, s.IsWritable(), "%s should not be a writable state", s)
	}
}
