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

package postgres

import "strings"

// ControlData is the subset of `pg_controldata`'s output the keeper
// needs to drive rewind/promotion decisions.
type ControlData struct {
	DatabaseSystemIdentifier     string
	LatestCheckpointTimelineID   string
	LatestCheckpointREDOLocation string
	REDOWALFile                  string
	TimeOfLatestCheckpoint       string
	DatabaseClusterState         string
}

// ParseControlData parses the textual "key:   value" output of
// `pg_controldata` into a ControlData. Unknown lines are ignored, the
// same tolerant behavior as the underlying tool: new pg_controldata
// fields must never break parsing of the fields this type cares about.
func ParseControlData(output string) ControlData {
	fields := make(map[string]string)

	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		fields[key] = value
	}

	return ControlData{
		DatabaseSystemIdentifier:     fields["Database system identifier"],
		LatestCheckpointTimelineID:   fields["Latest checkpoint's TimeLineID"],
		LatestCheckpointREDOLocation: fields["Latest checkpoint's REDO location"],
		REDOWALFile:                  fields["Latest checkpoint's REDO WAL file"],
		TimeOfLatestCheckpoint:       fields["Time of latest checkpoint"],
		DatabaseClusterState:         fields["Database cluster state"],
	}
}

// IsShutDown reports whether the control data was captured while the
// instance was cleanly shut down — a precondition pg_rewind and
// pg_basebackup both rely on.
func (c ControlData) IsShutDown() bool {
	return strings.HasPrefix(c.DatabaseClusterState, "shut down")
}
