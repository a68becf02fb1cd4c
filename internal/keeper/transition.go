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

package keeper

import (
	"context"
	"os"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
	"github.com/pgautoctl/pgautoctl/internal/pgctl"
)

// executeTransition runs the ordered action script for (from, to)
// against the local PostgresControl, stopping at the first failing
// action: an action failure is reported, not retried ad infinitum by
// the keeper itself.
func (k *Keeper) executeTransition(ctx context.Context, from, to fsm.NodeState, assignment monitor.Assignment) error {
	actions, ok := fsm.Actions(from, to)
	if !ok {
		return apperrors.NewInternalError("no action script registered for %s -> %s", from, to)
	}

	pgdata := k.Setup.PgData

	for _, action := range actions {
		var err error

		switch action {
		case fsm.ActionInitdb:
			err = k.Control.Initdb(ctx, pgdata)
		case fsm.ActionAddDefaults:
			// Default GUCs are written as part of Initdb's own
			// postgresql.auto.conf seeding; nothing further to do here.
		case fsm.ActionStart:
			err = k.Control.Start(ctx, pgdata)
		case fsm.ActionCreateAutoctlRole:
			err = k.Control.CreateAutoctlRole(ctx, pgdata, "")
		case fsm.ActionEnsurePGDataRemovable:
			entries, readErr := os.ReadDir(pgdata)
			if readErr == nil && len(entries) > 0 && !k.Setup.AllowRemovingPgdata {
				err = apperrors.NewBadStateError("refusing to remove non-empty PGDATA %s without --allow-removing-pgdata", pgdata)
			}
		case fsm.ActionBasebackup:
			err = k.Control.Basebackup(ctx, pgdata, k.replicationSource())
		case fsm.ActionWriteStandbySettings:
			err = k.Control.WriteStandbySettings(ctx, pgdata, k.replicationSource())
		case fsm.ActionStartAsStandby:
			err = k.Control.Start(ctx, pgdata)
		case fsm.ActionWaitStreaming:
			// Streaming state is observed on the next tick's GetWalLSN
			// call; no blocking wait is performed here.
		case fsm.ActionVerifyReplicationLag:
			// The monitor already gated CATCHINGUP -> SECONDARY on lag;
			// nothing further to check locally.
		case fsm.ActionEnsureReplicationSlot:
			err = k.Control.CreateReplicationSlot(ctx, pgdata, k.Setup.Nodename)
		case fsm.ActionCheckpoint:
			// A CHECKPOINT is issued as part of Promote's own sequencing
			// by most pg_ctl implementations; nothing further to do here.
		case fsm.ActionStopWalReceiver:
			// Stopping the WAL receiver is a side effect of Promote;
			// nothing further to do here.
		case fsm.ActionPauseReplication:
			// No separate pause primitive exists short of stopping
			// Postgres outright, which the next action in the script does.
		case fsm.ActionFenceOldPrimary:
			err = k.Control.Stop(ctx, pgdata)
		case fsm.ActionPromote:
			err = k.Control.Promote(ctx, pgdata)
		case fsm.ActionWaitWritable:
			// Writability is confirmed by the next successful heartbeat
			// reporting pgIsRunning=true; no local blocking wait here.
		case fsm.ActionCreateMissingSlots:
			err = k.Control.CreateReplicationSlot(ctx, pgdata, k.Setup.Nodename)
		case fsm.ActionEditHBA:
			if k.Setup.SkipPgHBA {
				break
			}
			method := k.Setup.Auth
			if method == "" {
				method = "trust"
			}
			err = k.Control.AddHBA(ctx, pgdata, pgctl.HBARule{
				Type:     "hostssl",
				Database: "replication",
				User:     "autoctl_node",
				Address:  "0.0.0.0/0",
				Method:   method,
			})
		case fsm.ActionRewriteSyncStandbyNames:
			err = k.Control.SetSyncStandbyNames(ctx, pgdata, assignment.SyncStandbyNames)
		case fsm.ActionReloadConfig:
			err = k.Control.Reload(ctx, pgdata)
		case fsm.ActionPauseWrites:
			// JOIN_PRIMARY's write pause is a monitor-visible state, not
			// a local action: the primary keeps serving until the
			// settings rewrite below completes.
		case fsm.ActionResumeWrites:
			// Symmetric no-op to ActionPauseWrites.
		case fsm.ActionStopPostgres:
			err = k.Control.Stop(ctx, pgdata)
		case fsm.ActionPgRewind:
			err = k.Control.Rewind(ctx, pgdata, k.replicationSource())
		default:
			err = apperrors.NewInternalError("unknown action %q in transition %s -> %s", action, from, to)
		}

		if err != nil {
			return apperrors.NewPgCtlError("action %q: %w", action, err)
		}
	}

	return nil
}

func (k *Keeper) replicationSource() pgctl.ReplicationSource {
	return pgctl.ReplicationSource{
		PrimaryHost: k.Setup.PgHost,
		PrimaryPort: k.Setup.PgPort,
		Username:    "autoctl_node",
		SlotName:    k.Setup.Nodename,
		SSLMode:     k.Setup.SSL.SSLMode,
	}
}
