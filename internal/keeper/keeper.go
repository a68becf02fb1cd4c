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

// Package keeper is the per-node agent: a cooperative loop that
// observes local Postgres, reports to the monitor, and executes
// whatever transition the monitor assigns.
package keeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/config"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
	"github.com/pgautoctl/pgautoctl/internal/monitor/monitorclient"
	"github.com/pgautoctl/pgautoctl/internal/pgctl"
	"github.com/pgautoctl/pgautoctl/pkg/logging"
)

// Config holds the keeper's tunables.
type Config struct {
	PgAutoCtlInterval              time.Duration
	PostgresqlRestartFailureTimeout time.Duration
	PostgresqlRestartFailureMaxRetries int
}

// DefaultConfig returns a loop cadence short enough to converge
// quickly and long enough not to hammer the monitor.
func DefaultConfig() Config {
	return Config{
		PgAutoCtlInterval:                  3 * time.Second,
		PostgresqlRestartFailureTimeout:    20 * time.Second,
		PostgresqlRestartFailureMaxRetries: 3,
	}
}

// Keeper wires together the collaborators on the keeper side of the
// protocol: the monitor RPC client, local Postgres control, and the
// persisted local state.
type Keeper struct {
	NodeID  monitor.NodeID
	Config  Config
	Setup   config.PgSetup
	Monitor monitorclient.MonitorClient
	Control pgctl.PostgresControl
	State   *config.StateStore

	restartFailures int
}

// New builds a Keeper from its already-loaded collaborators.
func New(nodeID monitor.NodeID, setup config.PgSetup, cfg Config, mc monitorclient.MonitorClient, control pgctl.PostgresControl, state *config.StateStore) *Keeper {
	return &Keeper{
		NodeID:  nodeID,
		Config:  cfg,
		Setup:   setup,
		Monitor: mc,
		Control: control,
		State:   state,
	}
}

// Run is the state loop: on each tick, observe local state, report it,
// execute whatever transition comes back, and persist. The caller is
// responsible for wiring ctx to signal-driven cancellation (see
// Supervise).
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.Config.PgAutoCtlInterval)
	defer ticker.Stop()

	if err := k.tick(ctx); err != nil {
		logging.Warning("keeper tick failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := k.tick(ctx); err != nil {
				logging.Warning("keeper tick failed", zap.Error(err))
			}
		}
	}
}

// tick is one observe/report/execute/persist cycle.
func (k *Keeper) tick(ctx context.Context) error {
	state, err := k.State.Load()
	if err != nil {
		return err
	}

	observed, err := k.observe(ctx, state)
	if err != nil {
		// Failing to observe local Postgres must never mutate local
		// state: log and retry on the next tick.
		return apperrors.NewPgCtlError("observing local Postgres: %w", err)
	}

	assignment, err := k.Monitor.NodeActive(ctx, k.Setup.Formation, k.Setup.GroupID, observed)
	if err != nil {
		return apperrors.NewMonitorError("node_active failed: %w", err)
	}

	state.AssignedGoal = assignment.GoalState
	state.LastReportedLSN = observed.ReportedLSN
	state.LastReportedAt = timeNow()

	if state.CurrentState != state.AssignedGoal {
		if !fsm.IsLegal(state.CurrentState, state.AssignedGoal) {
			return apperrors.NewInternalError("monitor assigned illegal transition %s -> %s", state.CurrentState, state.AssignedGoal)
		}

		if err := k.executeTransition(ctx, state.CurrentState, state.AssignedGoal, assignment); err != nil {
			return apperrors.NewKeeperError("executing transition %s -> %s: %w", state.CurrentState, state.AssignedGoal, err)
		}

		state.CurrentState = state.AssignedGoal
	}

	return k.State.Save(state)
}

// observe checks local Postgres and, if it isn't running, attempts a
// bounded number of local restarts before giving up and reporting
// pgIsRunning=false to the monitor: the keeper tries to self-heal
// before escalating, but never retries forever.
func (k *Keeper) observe(ctx context.Context, state config.NodeState) (monitor.NodeObserved, error) {
	running, err := k.Control.IsRunning(ctx, k.Setup.PgData)
	if err != nil {
		return monitor.NodeObserved{}, err
	}

	expectedRunning := state.CurrentState != fsm.Init &&
		state.CurrentState != fsm.Demoted &&
		state.CurrentState != fsm.DemoteTimeout &&
		state.CurrentState != fsm.Maintenance

	if !running && expectedRunning {
		if k.restartFailures < k.Config.PostgresqlRestartFailureMaxRetries {
			if restartErr := k.Control.Start(ctx, k.Setup.PgData); restartErr != nil {
				k.restartFailures++
				logging.Warning("local Postgres restart attempt failed", zap.Int("attempt", k.restartFailures), zap.Error(restartErr))
			} else {
				k.restartFailures = 0
				running = true
			}
		}
	} else if running {
		k.restartFailures = 0
	}

	observed := monitor.NodeObserved{
		NodeID:              k.NodeID,
		ReportedPgIsRunning: running,
		ReportedLSN:         state.LastReportedLSN,
	}

	if running {
		if lsn, err := k.Control.GetWalLSN(ctx, k.Setup.PgData); err == nil {
			observed.ReportedLSN = lsn
		}
	}

	return observed, nil
}

var timeNow = time.Now
