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

// Package monitor is the authoritative controller side of the
// monitor/keeper protocol: the per-node record store, the decision
// engine that computes goal states for a group, and the event journal.
// It holds no network listener of its own — internal/monitor/monitorserver
// exposes it over HTTP/JSON, and internal/monitor/monitorclient is the
// matching client.
package monitor

import (
	"time"

	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/pkg/postgres"
)

// FormationKind distinguishes a plain Postgres formation from a Citus
// one. Both are treated uniformly: a formation holds one or more
// groups either way, and no Citus-specific transition exists in the
// FSM table.
type FormationKind string

// The two formation kinds.
const (
	FormationPgsql FormationKind = "pgsql"
	FormationCitus FormationKind = "citus"
)

// Formation is a named cluster: one or more replication Groups sharing
// a synchronous-replication policy.
type Formation struct {
	Name               string
	Kind               FormationKind
	NumberSyncStandbys int
}

// HealthState is the monitor's classification of a node's liveness,
// derived from heartbeat recency and reported pgIsRunning.
type HealthState string

// The three health states.
const (
	HealthUnknown HealthState = "unknown"
	HealthGood    HealthState = "good"
	HealthBad     HealthState = "bad"
)

// NodeID uniquely identifies a Node within the monitor store.
type NodeID int64

// Node is a managed Postgres instance and everything the monitor
// tracks about it.
type Node struct {
	NodeID      NodeID
	Formation   string
	GroupID     int
	Nodename    string
	PgPort      int

	CurrentState fsm.NodeState
	GoalState    fsm.NodeState

	CandidatePriority int
	ReplicationQuorum bool

	ReportedLSN         postgres.LSN
	ReportedPgIsRunning bool
	ReportedTimelineID  int

	LastHeartbeatAt time.Time
	HealthState     HealthState

	// LastReportedError is the last transition failure the keeper
	// reported for this node, cleared on the next successful report.
	LastReportedError string

	// pgNotRunningSince tracks how long ReportedPgIsRunning has been
	// false, for the PostgresqlRestartFailureTimeout health check.
	pgNotRunningSince *time.Time

	// preparePromotionSince tracks how long this node has been waiting
	// in PREPARE_PROMOTION for the LSN catch-up condition to hold.
	preparePromotionSince *time.Time
}

// Group is a replication group: an ordered set of Nodes inside a
// Formation. At most one Node in a Group may be writable at once.
type Group struct {
	Formation            string
	GroupID              int
	Nodes                []*Node
	SyncStandbyNames     string
	MaintenanceRequested map[NodeID]bool

	// failoverInFlight enforces "only one failover in flight per
	// group".
	failoverInFlight bool
}

// Key identifies a Group within the store.
type Key struct {
	Formation string
	GroupID   int
}

func groupKey(formation string, groupID int) Key {
	return Key{Formation: formation, GroupID: groupID}
}
