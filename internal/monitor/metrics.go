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

package monitor

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level collectors: registered once in init() and updated from
// wherever the underlying state actually changes, rather than polled
// out-of-band.
var (
	nodeStateTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgautoctl_monitor_node_state",
			Help: "Number of nodes currently in a given state, by formation/group/state",
		},
		[]string{"formation", "group", "state"},
	)

	eventJournalDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgautoctl_monitor_event_journal_depth",
			Help: "Number of events recorded for a formation/group since the monitor started",
		},
		[]string{"formation", "group"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgautoctl_monitor_transitions_total",
			Help: "Total number of node state transitions decided for a formation/group",
		},
		[]string{"formation", "group"},
	)
)

func init() {
	prometheus.MustRegister(nodeStateTotal)
	prometheus.MustRegister(eventJournalDepth)
	prometheus.MustRegister(transitionsTotal)
}

// Handler exposes the monitor's metrics over HTTP, for wiring into the
// `pg_autoctl run` monitor process with --metrics-port.
func Handler() http.Handler {
	return promhttp.Handler()
}

// refreshMetrics recomputes the node-state gauge and event-journal
// depth for one group from its current, already-locked state. Called
// after every appendEvent, since that is the only place a group's node
// states or event count can change.
func (gs *groupState) refreshMetrics() {
	formation := gs.group.Formation
	groupID := strconv.Itoa(gs.group.GroupID)

	counts := make(map[string]int)
	for _, n := range gs.group.Nodes {
		counts[string(n.CurrentState)]++
	}
	for state, count := range counts {
		nodeStateTotal.WithLabelValues(formation, groupID, state).Set(float64(count))
	}

	eventJournalDepth.WithLabelValues(formation, groupID).Set(float64(len(gs.events)))
}
