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
	"fmt"
	"sort"
	"strings"

	"github.com/thoas/go-funk"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/pkg/postgres"
)

// NodeObserved is what the keeper reports on every heartbeat.
type NodeObserved struct {
	NodeID              NodeID
	ReportedLSN         postgres.LSN
	ReportedPgIsRunning bool
	ReportedTimelineID  int
	ReportedError       string
}

// Assignment is what NodeActive hands back to the calling keeper.
type Assignment struct {
	GoalState        fsm.NodeState
	SyncStandbyNames string
}

// NodeActive classifies node health, computes the target topology for
// the whole group, recomputes synchronous_standby_names, commits, and
// returns the assignment for the reporting node. Two identical
// observed states in sequence produce the same assignment because the
// computation is a pure function of the stored Node records, which
// observed mutates in place before the topology pass runs.
func (s *Store) NodeActive(formation string, groupID int, observed NodeObserved, cfg DecisionConfig) (Assignment, error) {
	var result Assignment

	f, ok := s.Formation(formation)
	if !ok {
		return result, apperrors.NewBadArgsError("unknown formation %q", formation)
	}

	err := s.withGroup(formation, groupID, func(gs *groupState) error {
		node := gs.node(observed.NodeID)
		if node == nil {
			return apperrors.NewBadArgsError("node %d not found in group %s/%d", observed.NodeID, formation, groupID)
		}

		applyObserved(node, observed)

		before := make(map[NodeID]fsm.NodeState, len(gs.group.Nodes))
		for _, n := range gs.group.Nodes {
			before[n.NodeID] = n.GoalState
		}

		classifyHealth(gs.group.Nodes, cfg)
		decideGroup(gs.group, f, cfg)

		for _, n := range gs.group.Nodes {
			if n.GoalState != before[n.NodeID] {
				gs.appendEvent(n, n.CurrentState, n.GoalState, fmt.Sprintf("goal changed from %s to %s", before[n.NodeID], n.GoalState))
			}
		}

		result = Assignment{
			GoalState:        node.GoalState,
			SyncStandbyNames: gs.group.SyncStandbyNames,
		}
		return nil
	})

	return result, err
}

func applyObserved(node *Node, observed NodeObserved) {
	node.LastHeartbeatAt = now()
	node.ReportedLSN = observed.ReportedLSN
	node.ReportedPgIsRunning = observed.ReportedPgIsRunning
	node.ReportedTimelineID = observed.ReportedTimelineID
	node.LastReportedError = observed.ReportedError

	if observed.ReportedPgIsRunning {
		node.pgNotRunningSince = nil
		return
	}

	if node.pgNotRunningSince == nil {
		t := now()
		node.pgNotRunningSince = &t
	}
}

// classifyHealth derives each node's HealthState from heartbeat
// recency and reported pgIsRunning.
func classifyHealth(nodes []*Node, cfg DecisionConfig) {
	for _, n := range nodes {
		switch {
		case n.LastHeartbeatAt.IsZero():
			n.HealthState = HealthUnknown
		case now().Sub(n.LastHeartbeatAt) > cfg.NetworkPartitionTimeout:
			n.HealthState = HealthBad
		case !n.ReportedPgIsRunning && n.pgNotRunningSince != nil &&
			now().Sub(*n.pgNotRunningSince) > cfg.PostgresqlRestartFailureTimeout:
			n.HealthState = HealthBad
		default:
			n.HealthState = HealthGood
		}
	}
}

// decideGroup computes the target topology for the whole group and
// recomputes synchronous_standby_names.
func decideGroup(g *Group, f *Formation, cfg DecisionConfig) {
	primary := findHealthyPrimary(g)

	if primary != nil {
		g.failoverInFlight = false
		progressPrimarySide(g, primary)
		progressStandbySide(g, primary, cfg)
		recomputeSyncStandbyNames(g, f, primary)
		return
	}

	progressElection(g, cfg)
}

// findHealthyPrimary returns the group's writable node if it is
// currently healthy, nil otherwise — a node that is writable but
// unhealthy must be fenced, not treated as the acting primary.
func findHealthyPrimary(g *Group) *Node {
	for _, n := range g.Nodes {
		if n.CurrentState.IsWritable() && n.HealthState != HealthBad {
			return n
		}
	}
	return nil
}

func progressPrimarySide(g *Group, primary *Node) {
	switch primary.CurrentState {
	case fsm.Single:
		if len(g.Nodes) > 1 {
			primary.GoalState = fsm.WaitPrimary
		}
	case fsm.WaitPrimary:
		primary.GoalState = fsm.Primary
	case fsm.JoinPrimary:
		primary.GoalState = fsm.ApplySettings
	case fsm.ApplySettings:
		primary.GoalState = fsm.Primary
	}

	// A previously-fenced primary that has reconnected rejoins as a
	// standby through pg_rewind: DEMOTED -> CATCHINGUP.
	for _, n := range g.Nodes {
		if n == primary {
			continue
		}
		if n.CurrentState == fsm.Demoted && n.HealthState == HealthGood {
			n.GoalState = fsm.CatchingUp
		}
	}
}

func progressStandbySide(g *Group, primary *Node, cfg DecisionConfig) {
	for _, n := range g.Nodes {
		if n == primary {
			continue
		}

		switch n.CurrentState {
		case fsm.Init:
			n.GoalState = fsm.WaitStandby
		case fsm.WaitStandby:
			n.GoalState = fsm.CatchingUp
		case fsm.CatchingUp:
			if withinReplicationLag(primary.ReportedLSN, n.ReportedLSN, cfg.ReplicationLagBytes) {
				n.GoalState = fsm.Secondary
			} else {
				n.GoalState = fsm.CatchingUp
			}
		case fsm.Secondary:
			if n.GoalState != fsm.PrepareMaintenance && n.GoalState != fsm.Maintenance {
				n.GoalState = fsm.Secondary
			}
		case fsm.PrepareMaintenance:
			n.GoalState = fsm.Maintenance
		case fsm.Maintenance:
			// Stays in maintenance until an operator calls `disable maintenance`,
			// which flips GoalState externally (see EnableMaintenance/DisableMaintenance).
		}
	}
}

func withinReplicationLag(primaryLSN, standbyLSN postgres.LSN, thresholdBytes int64) bool {
	diff := primaryLSN.Diff(standbyLSN)
	return diff != nil && *diff >= 0 && *diff <= thresholdBytes
}

// recomputeSyncStandbyNames keeps synchronous_standby_names consistent
// with quorum membership: the set of eligible standbys is exactly
// {n : n.replicationQuorum && n.currentState == SECONDARY}, and
// k = min(numberSyncStandbys, |that set|).
func recomputeSyncStandbyNames(g *Group, f *Formation, primary *Node) {
	eligible := funk.Filter(g.Nodes, func(n *Node) bool {
		return n != primary && n.ReplicationQuorum && n.CurrentState == fsm.Secondary
	}).([]*Node)

	names := make([]string, 0, len(eligible))
	for _, n := range eligible {
		names = append(names, n.Nodename)
	}
	sort.Strings(names)

	k := f.NumberSyncStandbys
	if k > len(names) {
		k = len(names)
	}

	newNames := buildSyncStandbyNames(k, names)
	if newNames == g.SyncStandbyNames {
		return
	}
	g.SyncStandbyNames = newNames

	if primary.CurrentState != fsm.Primary || primary.GoalState != fsm.Primary {
		return
	}

	// Two or more eligible standbys route the change through
	// JOIN_PRIMARY (whose pause_writes action runs no local step, so
	// writes are not paused) before APPLY_SETTINGS; fewer use the
	// APPLY_SETTINGS round trip directly.
	if len(names) >= 2 {
		primary.GoalState = fsm.JoinPrimary
	} else {
		primary.GoalState = fsm.ApplySettings
	}
}

// buildSyncStandbyNames renders the "ANY <k> (<name1>,<name2>,…)"
// string, or "" when there is nothing to synchronize against.
func buildSyncStandbyNames(k int, names []string) string {
	if k <= 0 || len(names) == 0 {
		return ""
	}
	return fmt.Sprintf("ANY %d (%s)", k, strings.Join(names, ","))
}

// progressElection handles the "no healthy primary" branch: fence the
// old primary, elect and promote a candidate. Once a candidate has been
// chosen, g.failoverInFlight pins the election to that same node —
// electCandidate is not consulted again — so a second node becoming
// momentarily more attractive (higher LSN, healthy again) mid-failover
// can never bump the one already being promoted.
func progressElection(g *Group, cfg DecisionConfig) {
	fenceOldPrimary(g)

	healthy := funk.Filter(g.Nodes, func(n *Node) bool { return n.HealthState == HealthGood }).([]*Node)

	if g.failoverInFlight {
		if candidate := inFlightCandidate(g); candidate != nil {
			maxLSN := maxReportedLSN(healthy)
			progressCandidate(g, candidate, maxLSN, cfg)
			return
		}
		// The node being promoted is no longer in the group (removed
		// mid-failover): fall through and elect again.
		g.failoverInFlight = false
	}

	if len(healthy) == 1 {
		lone := healthy[0]
		if lone.CandidatePriority > 0 {
			promoteLoneSurvivor(lone)
		}
		return
	}

	candidate := electCandidate(healthy)
	if candidate == nil {
		// No eligible candidate: every healthy standby has
		// candidatePriority == 0, so the group stays primary-less until
		// an operator intervenes.
		return
	}

	maxLSN := maxReportedLSN(healthy)
	progressCandidate(g, candidate, maxLSN, cfg)
}

// inFlightCandidate returns the node already mid-promotion in g, or nil
// once it has finished (reached PRIMARY) or left the group.
func inFlightCandidate(g *Group) *Node {
	for _, n := range g.Nodes {
		if n.CurrentState == fsm.PreparePromotion || n.CurrentState == fsm.StopReplication || n.CurrentState == fsm.WaitPrimary ||
			n.GoalState == fsm.PreparePromotion {
			return n
		}
	}
	return nil
}

func fenceOldPrimary(g *Group) {
	for _, n := range g.Nodes {
		switch {
		case n.CurrentState.IsWritable():
			n.GoalState = fsm.Draining
		case n.CurrentState == fsm.Draining:
			n.GoalState = fsm.DemoteTimeout
		case n.CurrentState == fsm.DemoteTimeout:
			n.GoalState = fsm.Demoted
		}
	}
}

func promoteLoneSurvivor(n *Node) {
	switch n.CurrentState {
	case fsm.Secondary, fsm.CatchingUp:
		n.GoalState = fsm.Single
	}
}

// electCandidate picks the highest candidatePriority-eligible
// reportedLSN, ties broken by lowest nodeId. Nodes with
// candidatePriority == 0 are never selected,
// even if they have the highest LSN in the group (they still must
// ship WAL to the elected candidate — see progressCandidate).
func electCandidate(healthy []*Node) *Node {
	var best *Node
	for _, n := range healthy {
		if n.CandidatePriority <= 0 {
			continue
		}
		if !(n.CurrentState == fsm.Secondary || n.CurrentState == fsm.CatchingUp || n.CurrentState == fsm.PreparePromotion ||
			n.CurrentState == fsm.StopReplication || n.CurrentState == fsm.WaitPrimary) {
			continue
		}
		switch {
		case best == nil:
			best = n
		case n.ReportedLSN.Diff(best.ReportedLSN) != nil && *n.ReportedLSN.Diff(best.ReportedLSN) > 0:
			best = n
		case n.ReportedLSN == best.ReportedLSN && n.NodeID < best.NodeID:
			best = n
		}
	}
	return best
}

func maxReportedLSN(nodes []*Node) postgres.LSN {
	max := postgres.ZeroLSN
	for _, n := range nodes {
		if n.ReportedLSN.GreaterOrEqual(max) {
			max = n.ReportedLSN
		}
	}
	return max
}

// progressCandidate enforces promotion eligibility: a candidate moves
// on from PREPARE_PROMOTION to STOP_REPLICATION only once its LSN is >=
// the max reported by every healthy node of the group. While that does
// not hold, the monitor waits (re-asserting PREPARE_PROMOTION) until
// prepare_promotion_catchup elapses, then aborts the failover.
func progressCandidate(g *Group, candidate *Node, maxLSN postgres.LSN, cfg DecisionConfig) {
	caughtUp := candidate.ReportedLSN.GreaterOrEqual(maxLSN)

	switch candidate.CurrentState {
	case fsm.Secondary, fsm.CatchingUp:
		if !caughtUp {
			waitForCatchup(g, candidate, cfg)
			return
		}
		g.failoverInFlight = true
		candidate.GoalState = fsm.PreparePromotion
		t := now()
		candidate.preparePromotionSince = &t

	case fsm.PreparePromotion:
		if !caughtUp {
			waitForCatchup(g, candidate, cfg)
			return
		}
		candidate.GoalState = fsm.StopReplication

	case fsm.StopReplication:
		candidate.GoalState = fsm.WaitPrimary

	case fsm.WaitPrimary:
		candidate.GoalState = fsm.Primary
		candidate.preparePromotionSince = nil
		g.failoverInFlight = false
	}
}

func waitForCatchup(g *Group, candidate *Node, cfg DecisionConfig) {
	if candidate.preparePromotionSince == nil {
		t := now()
		candidate.preparePromotionSince = &t
		candidate.GoalState = fsm.PreparePromotion
		g.failoverInFlight = true
		return
	}

	if now().Sub(*candidate.preparePromotionSince) > cfg.PreparePromotionCatchup {
		// Abort: the candidate never caught up in time. Revert it to a
		// stable standby state and leave the group primary-less until
		// an operator intervenes.
		candidate.GoalState = fsm.Secondary
		candidate.preparePromotionSince = nil
		g.failoverInFlight = false
	}
}
