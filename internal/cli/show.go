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
	"fmt"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
)

func colorizeHealth(h monitor.HealthState) interface{} {
	switch h {
	case monitor.HealthGood:
		return aurora.Green(h)
	case monitor.HealthBad:
		return aurora.Red(h)
	default:
		return aurora.Yellow(h)
	}
}

func newShowCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show monitor-side state: nodes, events, uri, file, synchronous_standby_names",
	}

	var formation string
	var group int
	var count int
	var asYAML bool

	nodesCmd := &cobra.Command{
		Use:   "nodes",
		Short: "List every node the monitor knows about in a formation/group",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, setup, err := dialForThisNode(opts)
			if err != nil {
				return err
			}
			defer client.Close()
			if formation == "" {
				formation = setup.Formation
			}

			nodes, err := client.GetNodes(cmd.Context(), formation, group)
			if err != nil {
				return err
			}

			if asYAML {
				out, err := yaml.Marshal(nodes)
				if err != nil {
					return apperrors.NewInternalError("marshaling nodes: %w", err)
				}
				fmt.Print(string(out))
				return nil
			}

			t := tabby.New()
			t.AddHeader("ID", "Name", "Port", "Current", "Goal", "LSN", "Health")
			for _, n := range nodes {
				t.AddLine(n.NodeID, n.Nodename, n.PgPort, n.CurrentState, n.GoalState, n.ReportedLSN, colorizeHealth(n.HealthState))
			}
			t.Print()
			return nil
		},
	}
	nodesCmd.Flags().StringVar(&formation, "formation", "", "formation to inspect (default: this node's formation)")
	nodesCmd.Flags().IntVar(&group, "group", 0, "replication group to inspect")
	nodesCmd.Flags().BoolVar(&asYAML, "yaml", false, "emit YAML instead of a table")

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List recent events for a formation/group",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, setup, err := dialForThisNode(opts)
			if err != nil {
				return err
			}
			defer client.Close()
			if formation == "" {
				formation = setup.Formation
			}

			events, err := client.GetEvents(cmd.Context(), formation, group, count)
			if err != nil {
				return err
			}

			if asYAML {
				out, err := yaml.Marshal(events)
				if err != nil {
					return apperrors.NewInternalError("marshaling events: %w", err)
				}
				fmt.Print(string(out))
				return nil
			}

			t := tabby.New()
			t.AddHeader("Time", "Node", "From", "To", "Description")
			for _, e := range events {
				t.AddLine(e.Timestamp.Format("2006-01-02 15:04:05"), e.Nodename, e.PrevState, e.NewState, e.Description)
			}
			t.Print()
			return nil
		},
	}
	eventsCmd.Flags().StringVar(&formation, "formation", "", "formation to inspect (default: this node's formation)")
	eventsCmd.Flags().IntVar(&group, "group", 0, "replication group to inspect")
	eventsCmd.Flags().IntVar(&count, "count", 10, "number of events to show")
	eventsCmd.Flags().BoolVar(&asYAML, "yaml", false, "emit YAML instead of a table")

	uriCmd := &cobra.Command{
		Use:   "uri",
		Short: "Print the connection string for a formation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, setup, err := dialForThisNode(opts)
			if err != nil {
				return err
			}
			defer client.Close()
			if formation == "" {
				formation = setup.Formation
			}

			uri, err := client.FormationURI(cmd.Context(), formation)
			if err != nil {
				return err
			}
			fmt.Println(uri)
			return nil
		},
	}
	uriCmd.Flags().StringVar(&formation, "formation", "", "formation to inspect (default: this node's formation)")

	fileCmd := &cobra.Command{
		Use:   "file",
		Short: "Print this node's pg_autoctl.cfg and pg_autoctl.state file paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(opts.ConfigPath())
			fmt.Println(opts.StatePath())
			return nil
		},
	}

	syncCmd := &cobra.Command{
		Use:   "synchronous_standby_names",
		Short: "Print the currently computed synchronous_standby_names setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, setup, err := dialForThisNode(opts)
			if err != nil {
				return err
			}
			defer client.Close()
			if formation == "" {
				formation = setup.Formation
			}

			names, err := client.SyncStandbyNames(cmd.Context(), formation, group)
			if err != nil {
				return err
			}
			fmt.Println(names)
			return nil
		},
	}
	syncCmd.Flags().StringVar(&formation, "formation", "", "formation to inspect (default: this node's formation)")
	syncCmd.Flags().IntVar(&group, "group", 0, "replication group to inspect")

	cmd.AddCommand(nodesCmd, eventsCmd, uriCmd, fileCmd, syncCmd)
	return cmd
}
