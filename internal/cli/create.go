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
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/config"
	"github.com/pgautoctl/pgautoctl/internal/pgctl"
	"github.com/pgautoctl/pgautoctl/pkg/certs"
	"github.com/pgautoctl/pgautoctl/pkg/logging"
)

func newCreateCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a monitor or a Postgres node",
	}
	cmd.AddCommand(newCreateMonitorCommand(opts), newCreatePostgresCommand(opts))
	return cmd
}

func newCreateMonitorCommand(opts *GlobalOptions) *cobra.Command {
	var (
		pgport      int
		nodename    string
		auth        string
		skipHBA     bool
		run         bool
		monitorPort int
		ssl         SSLFlags
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Initialize a pg_auto_failover monitor node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ssl.Validate(); err != nil {
				return err
			}
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}

			ctx := context.Background()
			control := pgctl.NewControl(pgport)

			if err := control.Initdb(ctx, opts.PgData); err != nil {
				return err
			}
			if err := control.Start(ctx, opts.PgData); err != nil {
				return err
			}

			if ssl.SelfSigned {
				ca, err := certs.CreateRootCA(nodename, "pg_auto_failover")
				if err != nil {
					return apperrors.NewPgCtlError("generating self-signed certificate: %w", err)
				}
				if err := ca.WriteToDisk(filepath.Join(opts.PgData, "server.crt"), filepath.Join(opts.PgData, "server.key")); err != nil {
					return apperrors.NewPgCtlError("writing self-signed certificate: %w", err)
				}
			}

			setup := config.PgSetup{
				PgData:      opts.PgData,
				PgPort:      pgport,
				Nodename:    nodename,
				Auth:        auth,
				SkipPgHBA:   skipHBA,
				MonitorPort: monitorPort,
				SSL:         ssl.ToConfig(),
			}

			if err := opts.ConfigStore().Save(setup); err != nil {
				return err
			}

			logging.Info("monitor initialized", zap.String("pgdata", opts.PgData), zap.Int("monitor-port", monitorPort))

			if run {
				return runMonitorForeground(ctx, opts, setup)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pgport, "pgport", 5432, "PostgreSQL port")
	cmd.Flags().StringVar(&nodename, "nodename", "", "hostname or address other nodes use to reach this monitor")
	cmd.Flags().StringVar(&auth, "auth", "trust", "pg_hba.conf authentication method")
	cmd.Flags().BoolVar(&skipHBA, "skip-pg-hba", false, "leave pg_hba.conf untouched")
	cmd.Flags().BoolVar(&run, "run", false, "start the monitor immediately after initialization")
	cmd.Flags().IntVar(&monitorPort, "monitor-port", defaultMonitorPort, "port the monitor's RPC listener binds to")
	ssl.AddFlags(cmd.Flags())

	return cmd
}

func newCreatePostgresCommand(opts *GlobalOptions) *cobra.Command {
	var (
		pghost              string
		pgport              int
		listen              string
		username            string
		dbname              string
		nodename            string
		formation           string
		group               int
		monitorURI          string
		disableMonitor      bool
		candidatePriority   int
		replicationQuorum   bool
		auth                string
		skipHBA             bool
		allowRemovingPgdata bool
		run                 bool
		ssl                 SSLFlags
	)

	cmd := &cobra.Command{
		Use:   "postgres",
		Short: "Initialize a Postgres node managed by pg_auto_failover",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ssl.Validate(); err != nil {
				return err
			}
			if opts.PgData == "" {
				return apperrors.NewBadArgsError("--pgdata is required (or set $PGDATA)")
			}
			if disableMonitor {
				monitorURI = config.DisabledMonitorURI
			} else if monitorURI == "" {
				return apperrors.NewBadArgsError("--monitor is required unless --disable-monitor is given")
			}

			setup := config.PgSetup{
				PgData:              opts.PgData,
				PgHost:              pghost,
				PgPort:              pgport,
				Listen:              listen,
				Username:            username,
				DBName:              dbname,
				Nodename:            nodename,
				Formation:           formation,
				GroupID:             group,
				MonitorURI:          monitorURI,
				CandidatePriority:   candidatePriority,
				ReplicationQuorum:   replicationQuorum,
				Auth:                auth,
				SkipPgHBA:           skipHBA,
				AllowRemovingPgdata: allowRemovingPgdata,
				SSL:                 ssl.ToConfig(),
			}

			if err := opts.ConfigStore().Save(setup); err != nil {
				return err
			}

			ctx := context.Background()
			control := pgctl.NewControl(pgport)
			if err := control.Initdb(ctx, opts.PgData); err != nil {
				return err
			}

			logging.Info("postgres node initialized", zap.String("pgdata", opts.PgData), zap.String("formation", formation))

			if run {
				return runKeeperForeground(ctx, opts, setup)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pghost, "pghost", "localhost", "hostname this node advertises to peers")
	cmd.Flags().IntVar(&pgport, "pgport", 5432, "PostgreSQL port")
	cmd.Flags().StringVar(&listen, "listen", "*", "listen_addresses value")
	cmd.Flags().StringVar(&username, "username", "postgres", "superuser role name")
	cmd.Flags().StringVar(&dbname, "dbname", "postgres", "application database name")
	cmd.Flags().StringVar(&nodename, "nodename", "", "hostname or address other nodes use to reach this node")
	cmd.Flags().StringVar(&formation, "formation", "default", "formation to join")
	cmd.Flags().IntVar(&group, "group", 0, "replication group within the formation")
	cmd.Flags().StringVar(&monitorURI, "monitor", "", "monitor RPC address, e.g. http://monitor-host:8431")
	cmd.Flags().BoolVar(&disableMonitor, "disable-monitor", false, "run without a monitor")
	cmd.Flags().IntVar(&candidatePriority, "candidate-priority", 100, "promotion eligibility, 0-100")
	cmd.Flags().BoolVar(&replicationQuorum, "replication-quorum", true, "count this node towards synchronous_standby_names")
	cmd.Flags().StringVar(&auth, "auth", "trust", "pg_hba.conf authentication method")
	cmd.Flags().BoolVar(&skipHBA, "skip-pg-hba", false, "leave pg_hba.conf untouched")
	cmd.Flags().BoolVar(&allowRemovingPgdata, "allow-removing-pgdata", false, "allow re-initdb to remove a non-empty PGDATA")
	cmd.Flags().BoolVar(&run, "run", false, "start the keeper immediately after initialization")
	ssl.AddFlags(cmd.Flags())

	return cmd
}
