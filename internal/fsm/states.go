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

// Package fsm is the catalog of node-local states and legal (current,
// goal) transitions, expressed as data rather than nested switches so
// both the keeper and an offline verifier can consume it.
package fsm

// NodeState is a node-local state in the shared monitor/keeper FSM.
type NodeState string

// The full set of node-local states.
const (
	Init              NodeState = "init"
	Single            NodeState = "single"
	WaitPrimary       NodeState = "wait_primary"
	Primary           NodeState = "primary"
	JoinPrimary       NodeState = "join_primary"
	ApplySettings     NodeState = "apply_settings"
	DemoteTimeout     NodeState = "demote_timeout"
	Demoted           NodeState = "demoted"
	Draining          NodeState = "draining"
	StopReplication   NodeState = "stop_replication"
	WaitStandby       NodeState = "wait_standby"
	CatchingUp        NodeState = "catchingup"
	Secondary         NodeState = "secondary"
	PreparePromotion  NodeState = "prepare_promotion"
	PrepareMaintenance NodeState = "prepare_maintenance"
	Maintenance       NodeState = "maintenance"
)

// WritableStates is the set of states that can accept writes: at most
// one node in a group may be in any of these states at once.
var WritableStates = map[NodeState]bool{
	Single:        true,
	Primary:       true,
	WaitPrimary:   true,
	JoinPrimary:   true,
	ApplySettings: true,
}

// IsWritable reports whether s is one of WritableStates.
func (s NodeState) IsWritable() bool {
	return WritableStates[s]
}

// String implements fmt.Stringer.
func (s NodeState) String() string {
	return string(s)
}
