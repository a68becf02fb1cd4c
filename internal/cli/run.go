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

package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/config"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/internal/keeper"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
	"github.com/pgautoctl/pgautoctl/internal/monitor/monitorclient"
	"github.com/pgautoctl/pgautoctl/internal/monitor/monitorserver"
	"github.com/pgautoctl/pgautoctl/internal/pgctl"
	"github.com/pgautoctl/pgautoctl/pkg/logging"
)

// defaultMonitorPort is used when a monitor was created without
// --monitor-port.
const defaultMonitorPort = 8431

func newRunCommand(opts *GlobalOptions) *cobra.Command {
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor or keeper process for this PGDATA in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}

			setup, err := opts.ConfigStore().Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if metricsPort != 0 {
				serveMetrics(metricsPort)
			}

			if setup.Formation == "" {
				return runMonitorForeground(ctx, opts, setup)
			}
			return runKeeperForeground(ctx, opts, setup)
		},
	}

	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	return cmd
}

// serveMetrics starts the Prometheus HTTP handler in the background.
// A listener failure only gets logged: metrics are an observability
// side channel, never a reason to refuse to run the controller.
func serveMetrics(port int) {
	go func() {
		addr := fmt.Sprintf(":%d", port)
		if err := http.ListenAndServe(addr, monitor.Handler()); err != nil {
			logging.Warning("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
}

// writePidFile records the running process id so `stop`/`reload` can
// find it later in pg_autoctl.pid.
func writePidFile(opts *GlobalOptions) error {
	return os.WriteFile(opts.PidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// runMonitorForeground serves the decision engine over monitorserver's
// HTTP listener until a shutdown signal arrives. It does not start or
// supervise a Postgres instance for the monitor. The Store lives only in this process's
// memory: restarting the monitor starts every formation from scratch,
// same as losing the pgautofailover catalog would in a real deployment.
func runMonitorForeground(ctx context.Context, opts *GlobalOptions, setup config.PgSetup) error {
	if err := writePidFile(opts); err != nil {
		return apperrors.NewBadStateError("writing pid file: %w", err)
	}
	defer os.Remove(opts.PidPath())

	port := setup.MonitorPort
	if port == 0 {
		port = defaultMonitorPort
	}

	store := monitor.NewStore()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: monitorserver.New(store, monitor.DefaultDecisionConfig()),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	logging.Info("monitor running", zap.String("pgdata", opts.PgData), zap.Int("port", port))

	for {
		select {
		case <-ctx.Done():
			_ = srv.Shutdown(context.Background())
			return <-serveErr
		case err := <-serveErr:
			return apperrors.NewMonitorError("monitor listener stopped: %w", err)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logging.Info("received SIGHUP, nothing to reload on the monitor side")
				continue
			}
			logging.Info("monitor shutting down", zap.String("signal", sig.String()))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return nil
		}
	}
}

// runKeeperForeground dials the monitor, registers only if this node has
// never registered before, and hands control to the keeper's supervised
// loop.
func runKeeperForeground(ctx context.Context, opts *GlobalOptions, setup config.PgSetup) error {
	if err := writePidFile(opts); err != nil {
		return apperrors.NewBadStateError("writing pid file: %w", err)
	}
	defer os.Remove(opts.PidPath())

	var mc monitorclient.MonitorClient
	if !setup.MonitorDisabled() {
		client, err := monitorclient.Dial(setup.MonitorURI)
		if err != nil {
			return err
		}
		defer client.Close()
		mc = client
	} else {
		mc = disabledMonitorClient{}
	}

	stateStore := opts.StateStore()
	state, err := stateStore.Load()
	if err != nil {
		return err
	}

	nodeID := state.NodeID
	if !setup.MonitorDisabled() && nodeID == 0 {
		id, goal, err := mc.RegisterNode(ctx, setup.Formation, setup.GroupID, setup.Nodename, setup.PgPort, setup.CandidatePriority, setup.ReplicationQuorum)
		if err != nil {
			return err
		}
		nodeID = id
		state.NodeID = id
		state.AssignedGoal = goal
		if err := stateStore.Save(state); err != nil {
			return err
		}
	}

	control := pgctl.NewControl(setup.PgPort)

	k := keeper.New(nodeID, setup, keeper.DefaultConfig(), mc, control, stateStore)

	logging.Info("keeper running", zap.String("pgdata", opts.PgData), zap.String("formation", setup.Formation))

	reload, err := k.Supervise(ctx)
	go func() {
		for range reload {
			logging.Info("reloading configuration", zap.String("pgdata", opts.PgData))
		}
	}()
	return err
}

// disabledMonitorClient is used when a node runs with --disable-monitor:
// RegisterNode and NodeActive answer locally, keeping the keeper's
// control flow identical whether or not a monitor is present, and
// NodeActive always assigns SINGLE, since an unmonitored node never
// takes part in a failover decision. The operator-facing calls return a
// BadStateError instead.
type disabledMonitorClient struct{}

func (disabledMonitorClient) RegisterNode(ctx context.Context, formation string, groupID int, nodename string, pgPort int, candidatePriority int, replicationQuorum bool) (monitor.NodeID, fsm.NodeState, error) {
	return 0, fsm.Single, nil
}

func (disabledMonitorClient) NodeActive(ctx context.Context, formation string, groupID int, observed monitor.NodeObserved) (monitor.Assignment, error) {
	return monitor.Assignment{GoalState: fsm.Single}, nil
}

func (disabledMonitorClient) RemoveNode(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return nil
}

func (disabledMonitorClient) SetSyncStandbyNames(ctx context.Context, formation string, groupID int, names string) error {
	return nil
}

func (disabledMonitorClient) GetNodes(ctx context.Context, formation string, groupID int) ([]monitor.Node, error) {
	return nil, nil
}

func (disabledMonitorClient) GetEvents(ctx context.Context, formation string, groupID int, count int) ([]monitor.Event, error) {
	return nil, nil
}

func (disabledMonitorClient) FormationURI(ctx context.Context, formation string) (string, error) {
	return "", apperrors.NewBadStateError("monitor is disabled for this node")
}

func (disabledMonitorClient) EnableMaintenance(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return apperrors.NewBadStateError("monitor is disabled for this node")
}

func (disabledMonitorClient) DisableMaintenance(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return apperrors.NewBadStateError("monitor is disabled for this node")
}

func (disabledMonitorClient) PerformFailover(ctx context.Context, formation string, groupID int) error {
	return apperrors.NewBadStateError("monitor is disabled for this node")
}

func (disabledMonitorClient) SyncStandbyNames(ctx context.Context, formation string, groupID int) (string, error) {
	return "", apperrors.NewBadStateError("monitor is disabled for this node")
}

func (disabledMonitorClient) Close() error { return nil }
