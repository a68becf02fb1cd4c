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

// Package postgres holds small, dependency-free types describing
// Postgres-specific concepts shared by the monitor and the keeper:
// WAL positions, replication slot names and the like.
package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// LSN represents a Postgres WAL position in its textual "X/Y" form,
// e.g. "3BB/A9FFFBE8". It is monotonic within a timeline.
type LSN string

// ZeroLSN is the sentinel value reported before any WAL has been written.
const ZeroLSN = LSN("0/0")

// Parse converts the textual representation into a single int64,
// suitable for ordering and arithmetic. The high 32 bits hold the
// logical log file id, the low 32 bits the byte offset within it.
func (lsn LSN) Parse() (int64, error) {
	tokens := strings.Split(string(lsn), "/")
	if len(tokens) != 2 {
		return 0, fmt.Errorf("could not parse LSN %q: expected two tokens separated by '/'", lsn)
	}

	high, err := strconv.ParseUint(tokens[0], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse LSN %q: %w", lsn, err)
	}

	low, err := strconv.ParseUint(tokens[1], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse LSN %q: %w", lsn, err)
	}

	return int64(high<<32 | low), nil
}

// Diff returns lsn minus other, in bytes, or nil if either value
// cannot be parsed.
func (lsn LSN) Diff(other LSN) *int64 {
	a, err := lsn.Parse()
	if err != nil {
		return nil
	}

	b, err := other.Parse()
	if err != nil {
		return nil
	}

	res := a - b
	return &res
}

// Less reports whether lsn is strictly before other within the same
// timeline. Unparseable values compare as false.
func (lsn LSN) Less(other LSN) bool {
	diff := lsn.Diff(other)
	return diff != nil && *diff < 0
}

// GreaterOrEqual reports whether lsn is at or after other, used by the
// promotion-eligibility guard: a candidate's reportedLSN must be >=
// the maximum LSN reported by the healthy nodes of its group.
func (lsn LSN) GreaterOrEqual(other LSN) bool {
	diff := lsn.Diff(other)
	return diff != nil && *diff >= 0
}
