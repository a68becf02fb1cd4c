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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgautoctl/pgautoctl/internal/config"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
	"github.com/pgautoctl/pgautoctl/internal/pgctl"
	"github.com/pgautoctl/pgautoctl/pkg/postgres"
)

type fakeControl struct {
	running    bool
	calls      []string
	syncNames  string
}

func (f *fakeControl) Initdb(ctx context.Context, pgdata string) error {
	f.calls = append(f.calls, "initdb")
	return nil
}
func (f *fakeControl) Start(ctx context.Context, pgdata string) error {
	f.calls = append(f.calls, "start")
	f.running = true
	return nil
}
func (f *fakeControl) Stop(ctx context.Context, pgdata string) error {
	f.calls = append(f.calls, "stop")
	f.running = false
	return nil
}
func (f *fakeControl) Restart(ctx context.Context, pgdata string) error { return nil }
func (f *fakeControl) IsRunning(ctx context.Context, pgdata string) (bool, error) {
	return f.running, nil
}
func (f *fakeControl) Promote(ctx context.Context, pgdata string) error {
	f.calls = append(f.calls, "promote")
	return nil
}
func (f *fakeControl) Basebackup(ctx context.Context, pgdata string, src pgctl.ReplicationSource) error {
	f.calls = append(f.calls, "basebackup")
	return nil
}
func (f *fakeControl) Rewind(ctx context.Context, pgdata string, src pgctl.ReplicationSource) error {
	f.calls = append(f.calls, "rewind")
	return nil
}
func (f *fakeControl) GetControlData(ctx context.Context, pgdata string) (postgres.ControlData, error) {
	return postgres.ControlData{}, nil
}
func (f *fakeControl) SetSSL(ctx context.Context, pgdata string, mode pgctl.SSLMode) error { return nil }
func (f *fakeControl) AddHBA(ctx context.Context, pgdata string, rule pgctl.HBARule) error {
	f.calls = append(f.calls, "edit_hba")
	return nil
}
func (f *fakeControl) Reload(ctx context.Context, pgdata string) error {
	f.calls = append(f.calls, "reload")
	return nil
}
func (f *fakeControl) CreateReplicationSlot(ctx context.Context, pgdata string, name string) error {
	f.calls = append(f.calls, "create_slot")
	return nil
}
func (f *fakeControl) DropReplicationSlot(ctx context.Context, pgdata string, name string) error {
	return nil
}
func (f *fakeControl) SetSyncStandbyNames(ctx context.Context, pgdata string, names string) error {
	f.syncNames = names
	f.calls = append(f.calls, "set_sync_standby_names")
	return nil
}
func (f *fakeControl) GetWalLSN(ctx context.Context, pgdata string) (postgres.LSN, error) {
	return "0/100", nil
}
func (f *fakeControl) CreateAutoctlRole(ctx context.Context, pgdata string, password string) error {
	f.calls = append(f.calls, "create_autoctl_role")
	return nil
}
func (f *fakeControl) WriteStandbySettings(ctx context.Context, pgdata string, src pgctl.ReplicationSource) error {
	f.calls = append(f.calls, "write_standby_settings")
	return nil
}

type fakeMonitor struct {
	assignment monitor.Assignment
}

func (f *fakeMonitor) RegisterNode(ctx context.Context, formation string, groupID int, nodename string, pgPort int, candidatePriority int, replicationQuorum bool) (monitor.NodeID, fsm.NodeState, error) {
	return 1, fsm.Single, nil
}
func (f *fakeMonitor) NodeActive(ctx context.Context, formation string, groupID int, observed monitor.NodeObserved) (monitor.Assignment, error) {
	return f.assignment, nil
}
func (f *fakeMonitor) RemoveNode(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return nil
}
func (f *fakeMonitor) SetSyncStandbyNames(ctx context.Context, formation string, groupID int, names string) error {
	return nil
}
func (f *fakeMonitor) GetNodes(ctx context.Context, formation string, groupID int) ([]monitor.Node, error) {
	return nil, nil
}
func (f *fakeMonitor) GetEvents(ctx context.Context, formation string, groupID int, count int) ([]monitor.Event, error) {
	return nil, nil
}
func (f *fakeMonitor) FormationURI(ctx context.Context, formation string) (string, error) {
	return "", nil
}
func (f *fakeMonitor) EnableMaintenance(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return nil
}
func (f *fakeMonitor) DisableMaintenance(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return nil
}
func (f *fakeMonitor) PerformFailover(ctx context.Context, formation string, groupID int) error {
	return nil
}
func (f *fakeMonitor) SyncStandbyNames(ctx context.Context, formation string, groupID int) (string, error) {
	return "", nil
}
func (f *fakeMonitor) Close() error { return nil }

func newTestKeeper(t *testing.T, assignment monitor.Assignment) (*Keeper, *fakeControl) {
	t.Helper()
	dir, err := os.MkdirTemp("", "pgautoctl-keeper-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	control := &fakeControl{}
	mc := &fakeMonitor{assignment: assignment}
	state := config.NewStateStore(filepath.Join(dir, "pg_autoctl.state"))

	k := New(1, config.PgSetup{PgData: dir, Formation: "default", GroupID: 0}, DefaultConfig(), mc, control, state)
	return k, control
}

func TestTickBootstrapsFromInitToSingle(t *testing.T) {
	k, control := newTestKeeper(t, monitor.Assignment{GoalState: fsm.Single})

	require.NoError(t, k.tick(context.Background()))

	state, err := k.State.Load()
	require.NoError(t, err)
	require.Equal(t, fsm.Single, state.CurrentState)
	require.Contains(t, control.calls, "initdb")
	require.Contains(t, control.calls, "start")
	require.Contains(t, control.calls, "create_autoctl_role")
}

func TestTickRejectsIllegalAssignment(t *testing.T) {
	k, _ := newTestKeeper(t, monitor.Assignment{GoalState: fsm.Primary})

	err := k.tick(context.Background())
	require.Error(t, err)

	state, stateErr := k.State.Load()
	require.NoError(t, stateErr)
	require.Equal(t, fsm.Init, state.CurrentState, "an illegal assignment must never mutate local state")
}

func TestTickIsANoOpOnceConverged(t *testing.T) {
	k, control := newTestKeeper(t, monitor.Assignment{GoalState: fsm.Single})

	require.NoError(t, k.tick(context.Background()))
	control.calls = nil

	require.NoError(t, k.tick(context.Background()))
	require.Empty(t, control.calls, "once currentState == goalState no action script runs again")
}
