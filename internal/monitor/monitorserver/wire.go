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

package monitorserver

import (
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
)

// The request/response pairs below are the wire shapes both Server and
// monitorclient.Client encode against. Keeping them here, rather than
// duplicated on each side, is what lets the two packages stay in sync
// without a shared .proto file to regenerate from.

// ErrorResponse is the body written alongside a non-2xx status.
type ErrorResponse struct {
	Message string `json:"message"`
}

type RegisterNodeRequest struct {
	Formation         string `json:"formation"`
	GroupID           int    `json:"groupId"`
	Nodename          string `json:"nodename"`
	PgPort            int    `json:"pgPort"`
	CandidatePriority int    `json:"candidatePriority"`
	ReplicationQuorum bool   `json:"replicationQuorum"`
}

type RegisterNodeResponse struct {
	NodeID    monitor.NodeID `json:"nodeId"`
	GoalState fsm.NodeState  `json:"goalState"`
}

type NodeActiveRequest struct {
	Formation string               `json:"formation"`
	GroupID   int                  `json:"groupId"`
	Observed  monitor.NodeObserved `json:"observed"`
}

type NodeActiveResponse struct {
	Assignment monitor.Assignment `json:"assignment"`
}

type RemoveNodeRequest struct {
	Formation string         `json:"formation"`
	GroupID   int            `json:"groupId"`
	NodeID    monitor.NodeID `json:"nodeId"`
}

type GetNodesRequest struct {
	Formation string `json:"formation"`
	GroupID   int    `json:"groupId"`
}

type GetNodesResponse struct {
	Nodes []monitor.Node `json:"nodes"`
}

type SetSyncStandbyNamesRequest struct {
	Formation string `json:"formation"`
	GroupID   int    `json:"groupId"`
	Names     string `json:"names"`
}

type SyncStandbyNamesRequest struct {
	Formation string `json:"formation"`
	GroupID   int    `json:"groupId"`
}

type SyncStandbyNamesResponse struct {
	Names string `json:"names"`
}

type GetEventsRequest struct {
	Formation string `json:"formation"`
	GroupID   int    `json:"groupId"`
	Count     int    `json:"count"`
}

type GetEventsResponse struct {
	Events []monitor.Event `json:"events"`
}

type FormationURIRequest struct {
	Formation string `json:"formation"`
}

type FormationURIResponse struct {
	URI string `json:"uri"`
}

type MaintenanceRequest struct {
	Formation string         `json:"formation"`
	GroupID   int            `json:"groupId"`
	NodeID    monitor.NodeID `json:"nodeId"`
}

type PerformFailoverRequest struct {
	Formation string `json:"formation"`
	GroupID   int    `json:"groupId"`
}
