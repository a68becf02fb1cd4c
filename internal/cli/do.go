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

	"github.com/spf13/cobra"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/internal/pgctl"
)

// newDoCommand exposes the low-level primitives behind `create`/`run`
// directly, gated behind PG_AUTOCTL_DEBUG — diagnostic tooling for
// developing against the FSM and PostgresControl without a monitor in
// the loop.
func newDoCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "do",
		Short: "Debug-only low-level commands",
	}

	fsmCmd := &cobra.Command{Use: "fsm", Short: "Inspect and drive the node FSM directly"}

	fsmCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every legal (from, to) transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, from := range fsm.AllStates() {
				for _, to := range fsm.AllStates() {
					if actions, ok := fsm.Actions(from, to); ok {
						fmt.Printf("%s -> %s: %v\n", from, to, actions)
					}
				}
			}
			return nil
		},
	})

	fsmCmd.AddCommand(&cobra.Command{
		Use:   "assign <state>",
		Short: "Force the local state file's goal state, bypassing the monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}
			stateStore := opts.StateStore()
			state, err := stateStore.Load()
			if err != nil {
				return err
			}
			goal := fsm.NodeState(args[0])
			if !fsm.IsLegal(state.CurrentState, goal) {
				return apperrors.NewBadArgsError("no legal transition %s -> %s", state.CurrentState, goal)
			}
			state.AssignedGoal = goal
			return stateStore.Save(state)
		},
	})

	cmd.AddCommand(fsmCmd)

	slotCmd := &cobra.Command{Use: "slot", Short: "Manage replication slots directly"}
	slotCmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a replication slot on the local Postgres instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}
			setup, err := opts.ConfigStore().Load()
			if err != nil {
				return err
			}
			control := pgctl.NewControl(setup.PgPort)
			return control.CreateReplicationSlot(context.Background(), opts.PgData, args[0])
		},
	})
	slotCmd.AddCommand(&cobra.Command{
		Use:   "drop <name>",
		Short: "Drop a replication slot on the local Postgres instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}
			setup, err := opts.ConfigStore().Load()
			if err != nil {
				return err
			}
			control := pgctl.NewControl(setup.PgPort)
			return control.DropReplicationSlot(context.Background(), opts.PgData, args[0])
		},
	})
	cmd.AddCommand(slotCmd)

	return cmd
}
