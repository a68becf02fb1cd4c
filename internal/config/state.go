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

package config

import (
	"bytes"
	"encoding/gob"
	"os"
	"time"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
	"github.com/pgautoctl/pgautoctl/pkg/postgres"
)

// NodeState is the keeper's local view of its own FSM position and the
// monitor's last assignment, persisted as pg_autoctl.state.
type NodeState struct {
	// NodeID is the id the monitor allocated on this node's first
	// registration. Zero means this node has never registered: the
	// keeper only calls RegisterNode while it is unset, so a restart
	// resumes under the same identity instead of registering a second,
	// phantom node for the same PGDATA.
	NodeID         monitor.NodeID
	CurrentState   fsm.NodeState
	AssignedGoal   fsm.NodeState
	LastReportedLSN postgres.LSN
	LastReportedAt time.Time
}

// StateStore reads and atomically writes pg_autoctl.state using
// encoding/gob: a binary format fits this record well since, unlike
// pg_autoctl.cfg, nothing ever needs to hand-edit it.
type StateStore struct {
	Path string
}

// NewStateStore returns a StateStore bound to the pg_autoctl.state path.
func NewStateStore(path string) *StateStore {
	return &StateStore{Path: path}
}

// Load reads the persisted NodeState, returning the zero value
// (INIT/INIT) if the file does not exist yet.
func (s *StateStore) Load() (NodeState, error) {
	content, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return NodeState{CurrentState: fsm.Init, AssignedGoal: fsm.Init}, nil
	}
	if err != nil {
		return NodeState{}, apperrors.NewBadStateError("reading %s: %w", s.Path, err)
	}

	var state NodeState
	if err := gob.NewDecoder(bytes.NewReader(content)).Decode(&state); err != nil {
		return NodeState{}, apperrors.NewBadStateError("decoding %s: %w", s.Path, err)
	}

	return state, nil
}

// Save atomically writes state: encode to a temp file, then rename,
// so a crash mid-write can never leave a half-written state file that
// would later be misread as a corrupt FSM position.
func (s *StateStore) Save(state NodeState) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return apperrors.NewBadStateError("encoding state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return apperrors.NewBadStateError("writing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, s.Path); err != nil {
		return apperrors.NewBadStateError("renaming %s to %s: %w", tmp, s.Path, err)
	}

	return nil
}
