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
	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
)

// EnableMaintenance requests a standby be taken out of the replication
// quorum for planned operator work. Only a SECONDARY node may enter
// maintenance: decideGroup never starts maintenance itself, it only
// moves a node this request put in PREPARE_MAINTENANCE on to
// MAINTENANCE.
func (s *Store) EnableMaintenance(formation string, groupID int, nodeID NodeID) error {
	return s.withGroup(formation, groupID, func(gs *groupState) error {
		node := gs.node(nodeID)
		if node == nil {
			return apperrors.NewBadArgsError("node %d not found in group %s/%d", nodeID, formation, groupID)
		}
		if node.CurrentState != fsm.Secondary {
			return apperrors.NewBadStateError("node %d must be SECONDARY to enter maintenance, is %s", nodeID, node.CurrentState)
		}

		gs.group.MaintenanceRequested[nodeID] = true
		node.GoalState = fsm.PrepareMaintenance
		gs.appendEvent(node, node.CurrentState, node.GoalState, "maintenance requested")
		return nil
	})
}

// DisableMaintenance asks a node in maintenance to rejoin the group as
// a streaming standby.
func (s *Store) DisableMaintenance(formation string, groupID int, nodeID NodeID) error {
	return s.withGroup(formation, groupID, func(gs *groupState) error {
		node := gs.node(nodeID)
		if node == nil {
			return apperrors.NewBadArgsError("node %d not found in group %s/%d", nodeID, formation, groupID)
		}
		if node.CurrentState != fsm.Maintenance {
			return apperrors.NewBadStateError("node %d is not in maintenance, is %s", nodeID, node.CurrentState)
		}

		delete(gs.group.MaintenanceRequested, nodeID)
		node.GoalState = fsm.Secondary
		gs.appendEvent(node, node.CurrentState, node.GoalState, "maintenance cleared")
		return nil
	})
}
