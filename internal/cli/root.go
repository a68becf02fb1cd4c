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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pgautoctl/pgautoctl/internal/config"
	"github.com/pgautoctl/pgautoctl/pkg/logging"
)

// GlobalOptions threads the flags shared by every subcommand through
// constructor functions instead of package-level mutable state, which
// would make every command depend on process-global flag parsing order.
type GlobalOptions struct {
	PgData  string
	Logging logging.Flags
	Debug   bool
}

// ConfigPath returns the path to pg_autoctl.cfg inside PGDATA.
func (o *GlobalOptions) ConfigPath() string {
	return filepath.Join(o.PgData, "pg_autoctl.cfg")
}

// StatePath returns the path to pg_autoctl.state inside PGDATA.
func (o *GlobalOptions) StatePath() string {
	return filepath.Join(o.PgData, "pg_autoctl.state")
}

// PidPath returns the path to pg_autoctl.pid inside PGDATA.
func (o *GlobalOptions) PidPath() string {
	return filepath.Join(o.PgData, "pg_autoctl.pid")
}

// ConfigStore opens the ConfigStore rooted at PGDATA.
func (o *GlobalOptions) ConfigStore() *config.Store {
	return config.NewStore(o.ConfigPath())
}

// StateStore opens the LocalStateStore rooted at PGDATA.
func (o *GlobalOptions) StateStore() *config.StateStore {
	return config.NewStateStore(o.StatePath())
}

// NewRootCommand builds the `pg_autoctl` command tree. PG_AUTOCTL_DEBUG
// unlocks the `do` diagnostic subtree from help output.
func NewRootCommand() *cobra.Command {
	opts := &GlobalOptions{}

	root := &cobra.Command{
		Use:   "pg_autoctl",
		Short: "Postgres high-availability controller",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.Logging.ConfigureLogging()
			if opts.PgData == "" {
				opts.PgData = os.Getenv("PGDATA")
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.PgData, "pgdata", "", "PostgreSQL data directory (default: $PGDATA)")
	opts.Logging.AddFlags(root.PersistentFlags())

	opts.Debug = os.Getenv("PG_AUTOCTL_DEBUG") != ""

	root.AddCommand(
		newCreateCommand(opts),
		newDropCommand(opts),
		newRunCommand(opts),
		newStopCommand(opts),
		newReloadCommand(opts),
		newConfigCommand(opts),
		newEnableCommand(opts),
		newDisableCommand(opts),
		newPerformCommand(opts),
		newShowCommand(opts),
		newVersionCommand(),
	)

	if opts.Debug {
		root.AddCommand(newDoCommand(opts))
	}

	return root
}
