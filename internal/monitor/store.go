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
	"sync"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
)

// Store holds every Formation/Group/Node record the monitor knows
// about, keyed by (formation, groupId, nodeId) with row-level locking
// on read-modify-write. It is implemented as an in-process map of
// groups, each guarded by its own mutex: the interface this exposes is
// what a real `pgautofailover` Postgres extension would expose over
// SQL, but running that extension itself is out of scope here.
type Store struct {
	mu         sync.RWMutex
	formations map[string]*Formation
	groups     map[Key]*groupState
	nextNodeID NodeID
}

type groupState struct {
	mu     sync.Mutex
	group  *Group
	events []Event
}

// NewStore builds an empty monitor store.
func NewStore() *Store {
	return &Store{
		formations: make(map[string]*Formation),
		groups:     make(map[Key]*groupState),
	}
}

// EnsureFormation creates formation if it doesn't exist yet, or
// returns the existing one unchanged — an idempotent "ensure"
// operation.
func (s *Store) EnsureFormation(name string, kind FormationKind, numberSyncStandbys int) *Formation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.formations[name]; ok {
		return f
	}

	f := &Formation{Name: name, Kind: kind, NumberSyncStandbys: numberSyncStandbys}
	s.formations[name] = f
	return f
}

// Formation looks up a formation by name.
func (s *Store) Formation(name string) (*Formation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.formations[name]
	return f, ok
}

// withGroup runs fn with the named group's lock held, creating the
// group record on first use: a per-group exclusive lock held across
// read-modify-write of node rows plus the matching event append.
func (s *Store) withGroup(formation string, groupID int, fn func(*groupState) error) error {
	key := groupKey(formation, groupID)

	s.mu.Lock()
	gs, ok := s.groups[key]
	if !ok {
		gs = &groupState{group: &Group{
			Formation:            formation,
			GroupID:              groupID,
			MaintenanceRequested: make(map[NodeID]bool),
		}}
		s.groups[key] = gs
	}
	s.mu.Unlock()

	gs.mu.Lock()
	defer gs.mu.Unlock()
	return fn(gs)
}

// RegisterNode allocates a nodeId and assigns the initial goal —
// SINGLE for the first node of a group, WAIT_STANDBY otherwise. A
// nodename already registered in the group gets its existing node back.
func (s *Store) RegisterNode(formation string, groupID int, nodename string, pgPort int, candidatePriority int, replicationQuorum bool) (*Node, error) {
	var result *Node

	s.EnsureFormation(formation, FormationPgsql, 1)

	err := s.withGroup(formation, groupID, func(gs *groupState) error {
		for _, n := range gs.group.Nodes {
			if n.Nodename == nodename {
				result = n
				return nil
			}
		}

		s.mu.Lock()
		s.nextNodeID++
		id := s.nextNodeID
		s.mu.Unlock()

		goal := fsm.WaitStandby
		if len(gs.group.Nodes) == 0 {
			goal = fsm.Single
		}

		node := &Node{
			NodeID:            id,
			Formation:         formation,
			GroupID:           groupID,
			Nodename:          nodename,
			PgPort:            pgPort,
			CurrentState:      fsm.Init,
			GoalState:         goal,
			CandidatePriority: candidatePriority,
			ReplicationQuorum: replicationQuorum,
			HealthState:       HealthUnknown,
		}

		gs.group.Nodes = append(gs.group.Nodes, node)
		gs.appendEvent(node, fsm.Init, goal, "node registered")
		result = node
		return nil
	})

	return result, err
}

// RemoveNode rejects removal of a node that is the group's sole
// primary, since that would leave the group with no writable node and
// no candidate to promote in its place.
func (s *Store) RemoveNode(formation string, groupID int, nodeID NodeID) error {
	return s.withGroup(formation, groupID, func(gs *groupState) error {
		idx := -1
		for i, n := range gs.group.Nodes {
			if n.NodeID == nodeID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperrors.NewBadArgsError("node %d not found in group %s/%d", nodeID, formation, groupID)
		}

		node := gs.group.Nodes[idx]
		if node.CurrentState.IsWritable() && len(gs.group.Nodes) > 1 {
			otherPrimary := false
			for i, n := range gs.group.Nodes {
				if i != idx && n.CurrentState.IsWritable() {
					otherPrimary = true
				}
			}
			if !otherPrimary {
				return apperrors.NewBadArgsError("cannot remove node %d: it is the sole primary of group %s/%d", nodeID, formation, groupID)
			}
		}
		if node.CurrentState.IsWritable() && len(gs.group.Nodes) == 1 {
			return apperrors.NewBadArgsError("cannot remove node %d: it is the sole primary of group %s/%d", nodeID, formation, groupID)
		}

		gs.group.Nodes = append(gs.group.Nodes[:idx], gs.group.Nodes[idx+1:]...)
		return nil
	})
}

// Nodes returns a stable-ordered snapshot of a group's nodes, for
// `show nodes` and tests. The slice is a copy; mutating it does not
// affect the store.
func (s *Store) Nodes(formation string, groupID int) ([]*Node, error) {
	var result []*Node
	err := s.withGroup(formation, groupID, func(gs *groupState) error {
		result = make([]*Node, len(gs.group.Nodes))
		copy(result, gs.group.Nodes)
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].NodeID < result[j].NodeID })
	return result, err
}

// SyncStandbyNames returns the group's currently computed
// synchronous_standby_names setting, for `show synchronous_standby_names`.
func (s *Store) SyncStandbyNames(formation string, groupID int) (string, error) {
	var result string
	err := s.withGroup(formation, groupID, func(gs *groupState) error {
		result = gs.group.SyncStandbyNames
		return nil
	})
	return result, err
}

// SetSyncStandbyNames lets an operator force synchronous_standby_names
// to a specific value, bypassing the quorum computation for one round;
// the next NodeActive call recomputes it as usual from group membership.
func (s *Store) SetSyncStandbyNames(formation string, groupID int, names string) error {
	return s.withGroup(formation, groupID, func(gs *groupState) error {
		gs.group.SyncStandbyNames = names
		return nil
	})
}

// FormationURI composes a multi-host libpq connection string covering
// every node of group 0, relying on target_session_attrs=read-write so
// a connecting client lands on whichever node the monitor currently
// considers writable.
func (s *Store) FormationURI(formation string) (string, error) {
	if _, ok := s.Formation(formation); !ok {
		return "", apperrors.NewBadArgsError("unknown formation %q", formation)
	}

	nodes, err := s.Nodes(formation, 0)
	if err != nil {
		return "", err
	}

	hosts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		hosts = append(hosts, fmt.Sprintf("%s:%d", n.Nodename, n.PgPort))
	}

	return fmt.Sprintf("postgres://%s/%s?target_session_attrs=read-write", strings.Join(hosts, ","), formation), nil
}

// node finds a node by id within an already-locked groupState, or nil.
func (gs *groupState) node(id NodeID) *Node {
	for _, n := range gs.group.Nodes {
		if n.NodeID == id {
			return n
		}
	}
	return nil
}
