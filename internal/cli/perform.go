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
	"github.com/spf13/cobra"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/monitor/monitorclient"
)

func newPerformCommand(opts *GlobalOptions) *cobra.Command {
	var formation string
	var group int

	cmd := &cobra.Command{
		Use:   "perform",
		Short: "Trigger a failover or switchover on a formation/group",
	}

	runFailover := func(cmd *cobra.Command, args []string) error {
		if opts.PgData == "" {
			return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
		}
		setup, err := opts.ConfigStore().Load()
		if err != nil {
			return err
		}
		if setup.MonitorDisabled() {
			return apperrors.NewBadArgsError("this node runs with --disable-monitor, there is no monitor to contact")
		}
		if formation == "" {
			formation = setup.Formation
		}

		client, err := monitorclient.Dial(setup.MonitorURI)
		if err != nil {
			return err
		}
		defer client.Close()

		return client.PerformFailover(cmd.Context(), formation, group)
	}

	failoverCmd := &cobra.Command{
		Use:   "failover",
		Short: "Force the current primary to step down and let the monitor elect a new one",
		RunE:  runFailover,
	}
	failoverCmd.Flags().StringVar(&formation, "formation", "", "formation to act on (default: this node's formation)")
	failoverCmd.Flags().IntVar(&group, "group", 0, "replication group to act on")

	switchoverCmd := &cobra.Command{
		Use:   "switchover",
		Short: "Alias for failover: force a planned leadership change",
		RunE:  runFailover,
	}
	switchoverCmd.Flags().StringVar(&formation, "formation", "", "formation to act on (default: this node's formation)")
	switchoverCmd.Flags().IntVar(&group, "group", 0, "replication group to act on")

	cmd.AddCommand(failoverCmd, switchoverCmd)
	return cmd
}
