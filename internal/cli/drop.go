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
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
	"github.com/pgautoctl/pgautoctl/internal/monitor/monitorclient"
	"github.com/pgautoctl/pgautoctl/internal/pgctl"
	"github.com/pgautoctl/pgautoctl/pkg/logging"
)

// resolveNodeID returns this node's monitor-assigned id from its
// persisted state, failing rather than minting a fresh registration
// just to obtain an id to act on.
func resolveNodeID(opts *GlobalOptions) (monitor.NodeID, error) {
	state, err := opts.StateStore().Load()
	if err != nil {
		return 0, err
	}
	if state.NodeID == 0 {
		return 0, apperrors.NewBadStateError("this node has never registered with its monitor")
	}
	return state.NodeID, nil
}

func newDropCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop a monitor or a node",
	}
	cmd.AddCommand(newDropMonitorCommand(opts), newDropNodeCommand(opts))
	return cmd
}

func newDropMonitorCommand(opts *GlobalOptions) *cobra.Command {
	var destroy bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stop and optionally remove this monitor's PGDATA",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}
			setup, err := opts.ConfigStore().Load()
			if err != nil {
				return err
			}
			control := pgctl.NewControl(setup.PgPort)
			if err := control.Stop(context.Background(), opts.PgData); err != nil {
				logging.Warning("stopping monitor during drop", zap.Error(err))
			}
			if destroy {
				if err := os.RemoveAll(opts.PgData); err != nil {
					return apperrors.NewPgCtlError("removing %s: %w", opts.PgData, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&destroy, "destroy", false, "remove PGDATA entirely, not just stop Postgres")
	return cmd
}

func newDropNodeCommand(opts *GlobalOptions) *cobra.Command {
	var destroy bool
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Remove this node from its monitor, stop it, and optionally erase its PGDATA",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}
			setup, err := opts.ConfigStore().Load()
			if err != nil {
				return err
			}

			if !setup.MonitorDisabled() {
				client, err := monitorclient.Dial(setup.MonitorURI)
				if err != nil {
					return err
				}
				defer client.Close()

				id, err := resolveNodeID(opts)
				if err != nil {
					return err
				}
				if err := client.RemoveNode(context.Background(), setup.Formation, setup.GroupID, id); err != nil {
					return err
				}
			}

			control := pgctl.NewControl(setup.PgPort)
			if err := control.Stop(context.Background(), opts.PgData); err != nil {
				logging.Warning("stopping node during drop", zap.Error(err))
			}

			if destroy {
				if !setup.AllowRemovingPgdata {
					return apperrors.NewBadArgsError("refusing to remove non-empty PGDATA %s without --allow-removing-pgdata", opts.PgData)
				}
				if err := os.RemoveAll(opts.PgData); err != nil {
					return apperrors.NewPgCtlError("removing %s: %w", opts.PgData, err)
				}
			}

			return nil
		},
	}
	cmd.Flags().BoolVar(&destroy, "destroy", false, "remove PGDATA entirely, not just stop Postgres")
	return cmd
}
