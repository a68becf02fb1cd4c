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

// Action is one step of the ordered action script the keeper runs
// locally for a transition. Actions are named, not free-form shell, so
// the transition executor (internal/keeper) can dispatch each one to
// the matching PostgresControl method and so every action can be
// written as an idempotent "ensure X" operation.
type Action string

// The action vocabulary referenced by the transition table below.
// internal/keeper dispatches each name to a PostgresControl call; some
// names share a call (start, stop) and some run no local call at all.
const (
	ActionInitdb                  Action = "initdb"
	ActionAddDefaults             Action = "add_defaults"
	ActionStart                   Action = "start"
	ActionCreateAutoctlRole       Action = "create_autoctl_role"
	ActionEnsurePGDataRemovable   Action = "ensure_pgdata_removable"
	ActionBasebackup              Action = "basebackup"
	ActionWriteStandbySettings    Action = "write_standby_settings"
	ActionStartAsStandby          Action = "start_as_standby"
	ActionWaitStreaming           Action = "wait_streaming"
	ActionVerifyReplicationLag    Action = "verify_replication_lag"
	ActionEnsureReplicationSlot   Action = "ensure_replication_slot"
	ActionCheckpoint              Action = "checkpoint"
	ActionStopWalReceiver         Action = "stop_walreceiver"
	ActionPauseReplication        Action = "pause_replication"
	ActionFenceOldPrimary         Action = "fence_old_primary"
	ActionPromote                 Action = "promote"
	ActionWaitWritable            Action = "wait_writable"
	ActionCreateMissingSlots      Action = "create_missing_slots"
	ActionEditHBA                 Action = "edit_hba"
	ActionRewriteSyncStandbyNames Action = "rewrite_sync_standby_names"
	ActionReloadConfig            Action = "reload_config"
	ActionPauseWrites             Action = "pause_writes"
	ActionResumeWrites            Action = "resume_writes"
	ActionStopPostgres            Action = "stop_postgres"
	ActionPgRewind                Action = "pg_rewind"
)

// Transition identifies a (current, goal) state pair.
type Transition struct {
	From NodeState
	To   NodeState
}

// table is the closed set of legal transitions. A (from, to) pair not
// present here is rejected by the keeper, which refuses to run an
// unknown transition (see internal/keeper/keeper.go and transition.go).
// The monitor's decision engine does not check goals against this
// table before assigning them.
var table = map[Transition][]Action{
	// Primary-side bootstrap and settings churn.
	{Init, Single}: {ActionInitdb, ActionAddDefaults, ActionStart, ActionCreateAutoctlRole},
	{Single, WaitPrimary}: {ActionCreateMissingSlots, ActionEditHBA},
	{WaitPrimary, Primary}: {ActionWaitWritable, ActionCreateMissingSlots, ActionEditHBA},
	{Primary, JoinPrimary}:       {ActionPauseWrites},
	{JoinPrimary, ApplySettings}: {ActionRewriteSyncStandbyNames, ActionEditHBA, ActionReloadConfig},
	{ApplySettings, Primary}:     {ActionResumeWrites},
	{Primary, ApplySettings}:     {ActionRewriteSyncStandbyNames, ActionReloadConfig},

	// Failover: old primary side.
	{Primary, Draining}:           {ActionFenceOldPrimary},
	{Draining, DemoteTimeout}:     {ActionStopPostgres},
	{DemoteTimeout, Demoted}:      {ActionStopPostgres},
	{Demoted, CatchingUp}:         {ActionPgRewind, ActionStartAsStandby, ActionWaitStreaming},

	// Standby-side bootstrap.
	{Init, WaitStandby}:     {ActionEnsurePGDataRemovable, ActionBasebackup, ActionWriteStandbySettings},
	{WaitStandby, CatchingUp}: {ActionStartAsStandby, ActionWaitStreaming},
	{CatchingUp, Secondary}:  {ActionVerifyReplicationLag, ActionEnsureReplicationSlot},
	{Secondary, ApplySettings}:   {ActionReloadConfig},
	{ApplySettings, Secondary}:   {},

	// Failover: promotion path.
	{Secondary, PreparePromotion}:   {ActionCheckpoint, ActionStopWalReceiver},
	{PreparePromotion, StopReplication}: {ActionPauseReplication, ActionFenceOldPrimary},
	{StopReplication, WaitPrimary}:  {ActionPromote, ActionWaitWritable},

	// Maintenance.
	{Secondary, PrepareMaintenance}: {ActionPauseReplication},
	{PrepareMaintenance, Maintenance}: {ActionStopPostgres},
	{Maintenance, Secondary}:        {ActionStartAsStandby, ActionWaitStreaming},

	// Any running node can be asked to stop, landing it in DEMOTED.
	{Single, Demoted}:          {ActionStopPostgres},
	{Primary, Demoted}:         {ActionStopPostgres},
	{WaitPrimary, Demoted}:     {ActionStopPostgres},
	{JoinPrimary, Demoted}:     {ActionStopPostgres},
	{ApplySettings, Demoted}:   {ActionStopPostgres},
	{Secondary, Demoted}:       {ActionStopPostgres},
	{CatchingUp, Demoted}:      {ActionStopPostgres},
	{WaitStandby, Demoted}:     {ActionStopPostgres},
	{Maintenance, Demoted}:     {ActionStopPostgres},
	{PreparePromotion, Demoted}: {ActionStopPostgres},

	// Lone-survivor failover: no peer remains to fence or hand off to,
	// so the promotion collapses straight to SINGLE.
	{Secondary, Single}:   {ActionStopWalReceiver, ActionPromote, ActionWaitWritable, ActionCreateMissingSlots, ActionEditHBA},
	{CatchingUp, Single}:  {ActionStopWalReceiver, ActionPromote, ActionWaitWritable, ActionCreateMissingSlots, ActionEditHBA},
}

// Actions returns the ordered action script for (from, to), and
// whether that transition is legal at all.
func Actions(from, to NodeState) ([]Action, bool) {
	actions, ok := table[Transition{From: from, To: to}]
	return actions, ok
}

// IsLegal reports whether (from, to) is a transition the FSM knows
// about. The keeper consults it before running a transition, and
// `do fsm assign` before forcing a goal; the monitor does not call it.
func IsLegal(from, to NodeState) bool {
	_, ok := table[Transition{From: from, To: to}]
	return ok
}

// AllStates enumerates every state reachable from the table, used by
// the offline verifier.
func AllStates() []NodeState {
	seen := make(map[NodeState]bool)
	var states []NodeState
	for t := range table {
		for _, s := range []NodeState{t.From, t.To} {
			if !seen[s] {
				seen[s] = true
				states = append(states, s)
			}
		}
	}
	return states
}
