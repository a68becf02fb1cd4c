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
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
)

func readPid(opts *GlobalOptions) (int, error) {
	data, err := os.ReadFile(opts.PidPath())
	if err != nil {
		return 0, apperrors.NewBadStateError("reading %s: %w", opts.PidPath(), err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, apperrors.NewBadStateError("invalid pid file %s: %w", opts.PidPath(), err)
	}
	return pid, nil
}

func signalRunningProcess(opts *GlobalOptions, sig syscall.Signal) error {
	pid, err := readPid(opts)
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return apperrors.NewBadStateError("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return apperrors.NewBadStateError("signaling process %d: %w", pid, err)
	}
	return nil
}

func newStopCommand(opts *GlobalOptions) *cobra.Command {
	var fast bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the pg_autoctl process running against this PGDATA",
		RunE: func(cmd *cobra.Command, args []string) error {
			sig := syscall.SIGTERM
			if fast {
				sig = syscall.SIGQUIT
			}
			return signalRunningProcess(opts, sig)
		},
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "stop immediately instead of waiting for the current transition")
	return cmd
}

func newReloadCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running pg_autoctl process to reload its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signalRunningProcess(opts, syscall.SIGHUP)
		},
	}
}
