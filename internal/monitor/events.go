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
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
)

// Event is one committed decision, append-only.
type Event struct {
	ID          string
	Timestamp   time.Time
	Formation   string
	GroupID     int
	NodeID      NodeID
	Nodename    string
	PrevState   fsm.NodeState
	NewState    fsm.NodeState
	Description string
}

// appendEvent records exactly one event for a real transition. Must be
// called with the owning groupState's lock held: a no-op NodeActive
// call that leaves goal == current never reaches here, so exactly one
// event is recorded per real transition, never one per call.
func (gs *groupState) appendEvent(node *Node, prev, next fsm.NodeState, description string) {
	gs.events = append(gs.events, Event{
		ID:          uuid.NewString(),
		Timestamp:   now(),
		Formation:   node.Formation,
		GroupID:     node.GroupID,
		NodeID:      node.NodeID,
		Nodename:    node.Nodename,
		PrevState:   prev,
		NewState:    next,
		Description: description,
	})

	transitionsTotal.WithLabelValues(node.Formation, strconv.Itoa(node.GroupID)).Inc()
	gs.refreshMetrics()
}

// PerformFailover forces the group's current writable node to be
// treated as unhealthy, driving it through the same fencing and
// election branch a crash would: an operator-requested failover and a
// crash-triggered one share one code path, decideGroup's election
// branch.
func (s *Store) PerformFailover(formation string, groupID int, cfg DecisionConfig) error {
	f, ok := s.Formation(formation)
	if !ok {
		return apperrors.NewBadArgsError("unknown formation %q", formation)
	}

	return s.withGroup(formation, groupID, func(gs *groupState) error {
		for _, n := range gs.group.Nodes {
			if n.CurrentState.IsWritable() {
				n.HealthState = HealthBad
			}
		}

		before := make(map[NodeID]fsm.NodeState, len(gs.group.Nodes))
		for _, n := range gs.group.Nodes {
			before[n.NodeID] = n.GoalState
		}

		decideGroup(gs.group, f, cfg)

		for _, n := range gs.group.Nodes {
			if n.GoalState != before[n.NodeID] {
				gs.appendEvent(n, n.CurrentState, n.GoalState, "failover requested by operator")
			}
		}

		return nil
	})
}

// GetEvents returns the last count events for (formation, groupID)
// ordered by timestamp, for `show events`.
func (s *Store) GetEvents(formation string, groupID int, count int) ([]Event, error) {
	var result []Event

	err := s.withGroup(formation, groupID, func(gs *groupState) error {
		n := len(gs.events)
		start := 0
		if count > 0 && count < n {
			start = n - count
		}
		result = make([]Event, n-start)
		copy(result, gs.events[start:])
		return nil
	})

	return result, err
}

// now is a seam so tests can freeze time; production always uses
// time.Now.
var now = time.Now
