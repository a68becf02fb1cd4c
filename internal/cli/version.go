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

	"github.com/blang/semver"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags; defaults to a pre-release
// marker so a plain `go build` still reports something parseable.
var Version = "0.0.0-dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pg_autoctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := semver.Parse(Version)
			if err != nil {
				fmt.Println(Version)
				return nil
			}
			fmt.Println(v.String())
			return nil
		},
	}
}
