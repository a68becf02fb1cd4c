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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/pkg/postgres"
)

func freezeClock(t *testing.T) *time.Time {
	t.Helper()
	frozen := time.Now()
	now = func() time.Time { return frozen }
	t.Cleanup(func() { now = time.Now })
	return &frozen
}

func newTestStore(t *testing.T, numberSyncStandbys int) (*Store, *Formation) {
	t.Helper()
	s := NewStore()
	f := s.EnsureFormation("default", FormationPgsql, numberSyncStandbys)
	return s, f
}

func findNode(t *testing.T, s *Store, formation string, group int, id NodeID) *Node {
	t.Helper()
	nodes, err := s.Nodes(formation, group)
	require.NoError(t, err)
	for _, n := range nodes {
		if n.NodeID == id {
			return n
		}
	}
	t.Fatalf("node %d not found", id)
	return nil
}

// TestBootstrapSingle exercises the first node of a group: it is
// assigned SINGLE and stays there, a no-op on repeated reports.
func TestBootstrapSingle(t *testing.T) {
	freezeClock(t)
	s, _ := newTestStore(t, 1)

	a, err := s.RegisterNode("default", 0, "node-a", 5432, 100, true)
	require.NoError(t, err)
	require.Equal(t, fsm.Single, a.GoalState)

	a.CurrentState = fsm.Single

	cfg := DefaultDecisionConfig()
	assign, err := s.NodeActive("default", 0, NodeObserved{NodeID: a.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.Single, assign.GoalState)

	assign2, err := s.NodeActive("default", 0, NodeObserved{NodeID: a.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.Single, assign2.GoalState)

	events, err := s.GetEvents("default", 0, 0)
	require.NoError(t, err)
	for _, e := range events {
		require.NotEqual(t, e.PrevState, e.NewState, "no event for a no-op report")
	}
}

// TestAddStandbyPromotesToPrimaryAndAppliesQuorum exercises a second
// node joining a SINGLE group: it drives the primary through
// WAIT_PRIMARY -> PRIMARY -> APPLY_SETTINGS once the standby reaches
// SECONDARY, exercising the synchronous_standby_names recompute.
func TestAddStandbyPromotesToPrimaryAndAppliesQuorum(t *testing.T) {
	freezeClock(t)
	s, _ := newTestStore(t, 1)
	cfg := DefaultDecisionConfig()

	a, err := s.RegisterNode("default", 0, "node-a", 5432, 100, true)
	require.NoError(t, err)
	a.CurrentState = fsm.Single

	_, err = s.NodeActive("default", 0, NodeObserved{NodeID: a.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
	require.NoError(t, err)

	b, err := s.RegisterNode("default", 0, "node-b", 5433, 0, true)
	require.NoError(t, err)
	require.Equal(t, fsm.WaitStandby, b.GoalState)

	assign, err := s.NodeActive("default", 0, NodeObserved{NodeID: a.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.WaitPrimary, assign.GoalState, "primary must move to WAIT_PRIMARY once a peer joins")

	a.CurrentState = fsm.WaitPrimary
	assign, err = s.NodeActive("default", 0, NodeObserved{NodeID: a.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.Primary, assign.GoalState)
	a.CurrentState = fsm.Primary

	b.CurrentState = fsm.WaitStandby
	assign, err = s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/0"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.CatchingUp, assign.GoalState)
	b.CurrentState = fsm.CatchingUp

	assign, err = s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.Secondary, assign.GoalState, "lag within threshold must advance CATCHINGUP -> SECONDARY")
	b.CurrentState = fsm.Secondary

	assign, err = s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.Secondary, assign.GoalState)

	a = findNode(t, s, "default", 0, a.NodeID)
	require.Equal(t, fsm.ApplySettings, a.GoalState, "quorum change must push the primary through APPLY_SETTINGS")
	require.Contains(t, assign.SyncStandbyNames, "node-b")
}

// TestPrimaryCrashElectsCandidateByLSN verifies that once the primary
// stops heartbeating, the healthiest quorum standby with the highest
// candidatePriority and reportedLSN is promoted, and promotion
// eligibility holds throughout (the candidate only reaches
// WAIT_PRIMARY once its LSN is the max of the group).
func TestPrimaryCrashElectsCandidateByLSN(t *testing.T) {
	frozen := freezeClock(t)
	s, f := newTestStore(t, 1)
	cfg := DefaultDecisionConfig()
	_ = f

	a, err := s.RegisterNode("default", 0, "node-a", 5432, 100, true)
	require.NoError(t, err)
	a.CurrentState = fsm.Primary
	a.GoalState = fsm.Primary
	a.HealthState = HealthGood
	a.LastHeartbeatAt = *frozen

	b, err := s.RegisterNode("default", 0, "node-b", 5433, 100, true)
	require.NoError(t, err)
	b.CurrentState = fsm.Secondary
	b.GoalState = fsm.Secondary
	b.HealthState = HealthGood
	b.ReportedLSN = "0/500"
	b.LastHeartbeatAt = *frozen

	// A third quorum member stays healthy throughout so the group never
	// drops to a single survivor, forcing the tie-break path through
	// electCandidate rather than the lone-survivor shortcut.
	c, err := s.RegisterNode("default", 0, "node-c", 5434, 50, true)
	require.NoError(t, err)
	c.CurrentState = fsm.Secondary
	c.GoalState = fsm.Secondary
	c.HealthState = HealthGood
	c.ReportedLSN = "0/300"
	c.LastHeartbeatAt = *frozen

	// Primary goes silent: its last heartbeat falls outside the
	// network-partition timeout. node-c's heartbeat is refreshed to
	// simulate it still reporting in on schedule.
	*frozen = frozen.Add(cfg.NetworkPartitionTimeout + time.Second)
	c.LastHeartbeatAt = *frozen

	assign, err := s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/500"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.PreparePromotion, assign.GoalState)

	a = findNode(t, s, "default", 0, a.NodeID)
	require.Equal(t, fsm.Draining, a.GoalState, "the unresponsive old primary must be fenced")

	b.CurrentState = fsm.PreparePromotion
	assign, err = s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/500"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.StopReplication, assign.GoalState)

	b.CurrentState = fsm.StopReplication
	assign, err = s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/500"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.WaitPrimary, assign.GoalState)

	b.CurrentState = fsm.WaitPrimary
	assign, err = s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/500"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.Primary, assign.GoalState)
}

// TestCandidatePriorityZeroBlocksPromotion exercises the negative case:
// if every surviving standby has candidatePriority 0,
// the group is left without a writable goal rather than promoting an
// ineligible node.
func TestCandidatePriorityZeroBlocksPromotion(t *testing.T) {
	frozen := freezeClock(t)
	s, _ := newTestStore(t, 1)
	cfg := DefaultDecisionConfig()

	a, err := s.RegisterNode("default", 0, "node-a", 5432, 100, true)
	require.NoError(t, err)
	a.CurrentState = fsm.Primary
	a.GoalState = fsm.Primary
	a.HealthState = HealthGood
	a.LastHeartbeatAt = *frozen

	b, err := s.RegisterNode("default", 0, "node-b", 5433, 0, true)
	require.NoError(t, err)
	b.CurrentState = fsm.Secondary
	b.GoalState = fsm.Secondary
	b.HealthState = HealthGood
	b.ReportedLSN = "0/500"
	b.LastHeartbeatAt = *frozen

	*frozen = frozen.Add(cfg.NetworkPartitionTimeout + time.Second)

	assign, err := s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/500"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.Secondary, assign.GoalState, "candidatePriority 0 must never be promoted")
}

// TestLoneSurvivorCollapsesToSingle exercises the positive case:
// exactly one healthy node remains and is eligible, so
// it is promoted straight to SINGLE rather than routed through the
// two-node failover path.
func TestLoneSurvivorCollapsesToSingle(t *testing.T) {
	frozen := freezeClock(t)
	s, _ := newTestStore(t, 1)
	cfg := DefaultDecisionConfig()

	a, err := s.RegisterNode("default", 0, "node-a", 5432, 100, true)
	require.NoError(t, err)
	a.CurrentState = fsm.Primary
	a.GoalState = fsm.Primary
	a.HealthState = HealthGood
	a.LastHeartbeatAt = *frozen

	b, err := s.RegisterNode("default", 0, "node-b", 5433, 100, true)
	require.NoError(t, err)
	b.CurrentState = fsm.Secondary
	b.GoalState = fsm.Secondary
	b.HealthState = HealthGood
	b.ReportedLSN = "0/500"
	b.LastHeartbeatAt = *frozen

	c, err := s.RegisterNode("default", 0, "node-c", 5434, 100, true)
	require.NoError(t, err)
	c.CurrentState = fsm.Demoted
	c.GoalState = fsm.Demoted
	c.HealthState = HealthBad
	c.LastHeartbeatAt = frozen.Add(-time.Hour)

	*frozen = frozen.Add(cfg.NetworkPartitionTimeout + time.Second)

	assign, err := s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/500"}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.Single, assign.GoalState)
}

// TestMonitorOutageIsANoOp verifies that when observed state is
// identical to the last report, no goal state changes and no new
// event appears.
func TestMonitorOutageIsANoOp(t *testing.T) {
	freezeClock(t)
	s, _ := newTestStore(t, 1)
	cfg := DefaultDecisionConfig()

	a, err := s.RegisterNode("default", 0, "node-a", 5432, 100, true)
	require.NoError(t, err)
	a.CurrentState = fsm.Single

	_, err = s.NodeActive("default", 0, NodeObserved{NodeID: a.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
	require.NoError(t, err)

	before, err := s.GetEvents("default", 0, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = s.NodeActive("default", 0, NodeObserved{NodeID: a.NodeID, ReportedPgIsRunning: true, ReportedLSN: "0/100"}, cfg)
		require.NoError(t, err)
	}

	after, err := s.GetEvents("default", 0, 0)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after), "repeated identical reports must not grow the event journal")
}

// TestReplicationLagHoldsCatchingUpStandby ensures a standby whose
// reported LSN is still far behind stays in CATCHINGUP instead of
// advancing early, which would violate the quorum membership rule.
func TestReplicationLagHoldsCatchingUpStandby(t *testing.T) {
	freezeClock(t)
	s, _ := newTestStore(t, 1)
	cfg := DefaultDecisionConfig()

	a, err := s.RegisterNode("default", 0, "node-a", 5432, 100, true)
	require.NoError(t, err)
	a.CurrentState = fsm.Primary
	a.GoalState = fsm.Primary
	a.HealthState = HealthGood
	a.ReportedLSN = "1/0"

	b, err := s.RegisterNode("default", 0, "node-b", 5433, 100, true)
	require.NoError(t, err)
	b.CurrentState = fsm.CatchingUp

	assign, err := s.NodeActive("default", 0, NodeObserved{NodeID: b.NodeID, ReportedPgIsRunning: true, ReportedLSN: postgres.ZeroLSN}, cfg)
	require.NoError(t, err)
	require.Equal(t, fsm.CatchingUp, assign.GoalState)
}
