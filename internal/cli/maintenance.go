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
	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/config"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
	"github.com/pgautoctl/pgautoctl/internal/monitor/monitorclient"
)

// thisNodeID returns this node's monitor-assigned id from its persisted
// state. It never re-registers: by the time maintenance commands run,
// the keeper (or an earlier `create postgres --run`) has already
// registered this PGDATA once, and doing it again would mint a second,
// phantom node sharing the same nodename.
func thisNodeID(opts *GlobalOptions) (monitor.NodeID, error) {
	state, err := opts.StateStore().Load()
	if err != nil {
		return 0, err
	}
	if state.NodeID == 0 {
		return 0, apperrors.NewBadStateError("this node has never registered with its monitor")
	}
	return state.NodeID, nil
}

func dialForThisNode(opts *GlobalOptions) (*monitorclient.Client, config.PgSetup, error) {
	if opts.PgData == "" {
		return nil, config.PgSetup{}, apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
	}
	setup, err := opts.ConfigStore().Load()
	if err != nil {
		return nil, config.PgSetup{}, err
	}
	if setup.MonitorDisabled() {
		return nil, config.PgSetup{}, apperrors.NewBadArgsError("this node runs with --disable-monitor, there is no monitor to contact")
	}
	client, err := monitorclient.Dial(setup.MonitorURI)
	if err != nil {
		return nil, config.PgSetup{}, err
	}
	return client, setup, nil
}

// runAtSchedule blocks until a cron schedule next matches, then runs
// fn once and returns. The schedule string uses robfig/cron v1's
// cron.Parse grammar, which has six fields with seconds first, so
// "daily at 3am" is `--at "0 0 3 * * *"`.
func runAtSchedule(spec string, fn func() error) error {
	if _, err := cron.Parse(spec); err != nil {
		return apperrors.NewBadArgsError("invalid --at schedule %q: %w", spec, err)
	}

	done := make(chan error, 1)
	c := cron.New()
	if err := c.AddFunc(spec, func() {
		done <- fn()
	}); err != nil {
		return apperrors.NewBadArgsError("invalid --at schedule %q: %w", spec, err)
	}
	c.Start()
	defer c.Stop()

	return <-done
}

func newEnableCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable a feature for this node: maintenance, secondary, ssl",
	}

	var at string
	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Take this node out of the replication quorum for planned operator work",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, setup, err := dialForThisNode(opts)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := thisNodeID(opts)
			if err != nil {
				return err
			}

			enable := func() error {
				return client.EnableMaintenance(cmd.Context(), setup.Formation, setup.GroupID, id)
			}

			if at == "" {
				return enable()
			}
			return runAtSchedule(at, enable)
		},
	}
	maintenanceCmd.Flags().StringVar(&at, "at", "", "cron schedule to enter maintenance at instead of immediately")
	cmd.AddCommand(maintenanceCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "secondary",
		Short: "Allow this node to rejoin the replication quorum as a secondary",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, setup, err := dialForThisNode(opts)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := thisNodeID(opts)
			if err != nil {
				return err
			}
			return client.DisableMaintenance(cmd.Context(), setup.Formation, setup.GroupID, id)
		},
	})

	var ssl SSLFlags
	sslCmd := &cobra.Command{
		Use:   "ssl",
		Short: "Turn SSL on for this node's local Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ssl.Validate(); err != nil {
				return err
			}
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}
			setup, err := opts.ConfigStore().Load()
			if err != nil {
				return err
			}
			setup.SSL = ssl.ToConfig()
			return opts.ConfigStore().Save(setup)
		},
	}
	ssl.AddFlags(sslCmd.Flags())
	cmd.AddCommand(sslCmd)

	return cmd
}

func newDisableCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable a feature for this node: maintenance, ssl",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "maintenance",
		Short: "Alias for `enable secondary`: rejoin the replication quorum",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, setup, err := dialForThisNode(opts)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := thisNodeID(opts)
			if err != nil {
				return err
			}
			return client.DisableMaintenance(cmd.Context(), setup.Formation, setup.GroupID, id)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ssl",
		Short: "Turn SSL off for this node's local Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}
			setup, err := opts.ConfigStore().Load()
			if err != nil {
				return err
			}
			setup.SSL = config.SSLConfig{NoSSL: true}
			return opts.ConfigStore().Save(setup)
		},
	})

	return cmd
}
