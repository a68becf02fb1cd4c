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

import "fmt"

// VerifyReachability walks the transition table starting at Init and
// reports any state the table defines that is not reachable from it.
// An unreachable state is almost always a typo in the table: the
// monitor would assign a goal no keeper could ever legally converge
// to, silently stalling convergence.
func VerifyReachability() error {
	reachable := map[NodeState]bool{Init: true}

	for changed := true; changed; {
		changed = false
		for t := range table {
			if reachable[t.From] && !reachable[t.To] {
				reachable[t.To] = true
				changed = true
			}
		}
	}

	var unreachable []NodeState
	for _, s := range AllStates() {
		if !reachable[s] {
			unreachable = append(unreachable, s)
		}
	}

	if len(unreachable) > 0 {
		return fmt.Errorf("unreachable FSM states from %s: %v", Init, unreachable)
	}

	return nil
}
