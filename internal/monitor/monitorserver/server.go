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

// Package monitorserver is the listener side of the monitor/keeper wire
// protocol: it wraps a monitor.Store behind plain HTTP endpoints, one
// per MonitorClient method, so internal/monitor/monitorclient has an
// actual process to dial instead of a schema that was never installed
// anywhere. Requests and responses are JSON, matching the rest of the
// tree's habit of reaching for net/http plus the standard encoders
// rather than a generated-code transport.
package monitorserver

import (
	"encoding/json"
	"net/http"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
)

// Server adapts a monitor.Store to net/http.Handler.
type Server struct {
	store *monitor.Store
	cfg   monitor.DecisionConfig
	mux   *http.ServeMux
}

// New builds a Server over store, evaluating the decision engine with
// cfg on every node_active/failover call.
func New(store *monitor.Store, cfg monitor.DecisionConfig) *Server {
	s := &Server{store: store, cfg: cfg, mux: http.NewServeMux()}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/nodes/register", s.handleRegisterNode)
	s.mux.HandleFunc("/nodes/active", s.handleNodeActive)
	s.mux.HandleFunc("/nodes/remove", s.handleRemoveNode)
	s.mux.HandleFunc("/nodes/list", s.handleGetNodes)
	s.mux.HandleFunc("/standby-names/set", s.handleSetSyncStandbyNames)
	s.mux.HandleFunc("/standby-names/get", s.handleSyncStandbyNames)
	s.mux.HandleFunc("/events/list", s.handleGetEvents)
	s.mux.HandleFunc("/formation/uri", s.handleFormationURI)
	s.mux.HandleFunc("/maintenance/enable", s.handleEnableMaintenance)
	s.mux.HandleFunc("/maintenance/disable", s.handleDisableMaintenance)
	s.mux.HandleFunc("/failover", s.handlePerformFailover)

	return s
}

// ServeHTTP makes Server itself an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeResult(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as a JSON envelope, using the same exit-code
// kind the CLI would report, so the client side can fold it back into
// an apperrors.MonitorError without losing the underlying reason.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.ExitCodeFor(err) {
	case apperrors.ExitBadArgs, apperrors.ExitBadConfig:
		status = http.StatusBadRequest
	case apperrors.ExitBadState:
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Message: err.Error()})
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req RegisterNodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding register_node request: %w", err))
		return
	}

	node, err := s.store.RegisterNode(req.Formation, req.GroupID, req.Nodename, req.PgPort, req.CandidatePriority, req.ReplicationQuorum)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, RegisterNodeResponse{NodeID: node.NodeID, GoalState: node.GoalState})
}

func (s *Server) handleNodeActive(w http.ResponseWriter, r *http.Request) {
	var req NodeActiveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding node_active request: %w", err))
		return
	}

	assignment, err := s.store.NodeActive(req.Formation, req.GroupID, req.Observed, s.cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, NodeActiveResponse{Assignment: assignment})
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	var req RemoveNodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding remove_node request: %w", err))
		return
	}

	if err := s.store.RemoveNode(req.Formation, req.GroupID, req.NodeID); err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, struct{}{})
}

func (s *Server) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	var req GetNodesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding get_nodes request: %w", err))
		return
	}

	nodes, err := s.store.Nodes(req.Formation, req.GroupID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]monitor.Node, len(nodes))
	for i, n := range nodes {
		out[i] = *n
	}
	writeResult(w, GetNodesResponse{Nodes: out})
}

func (s *Server) handleSetSyncStandbyNames(w http.ResponseWriter, r *http.Request) {
	var req SetSyncStandbyNamesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding set_sync_standby_names request: %w", err))
		return
	}

	if err := s.store.SetSyncStandbyNames(req.Formation, req.GroupID, req.Names); err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, struct{}{})
}

func (s *Server) handleSyncStandbyNames(w http.ResponseWriter, r *http.Request) {
	var req SyncStandbyNamesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding get_synchronous_standby_names request: %w", err))
		return
	}

	names, err := s.store.SyncStandbyNames(req.Formation, req.GroupID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, SyncStandbyNamesResponse{Names: names})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	var req GetEventsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding get_events request: %w", err))
		return
	}

	events, err := s.store.GetEvents(req.Formation, req.GroupID, req.Count)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, GetEventsResponse{Events: events})
}

func (s *Server) handleFormationURI(w http.ResponseWriter, r *http.Request) {
	var req FormationURIRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding formation_uri request: %w", err))
		return
	}

	uri, err := s.store.FormationURI(req.Formation)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, FormationURIResponse{URI: uri})
}

func (s *Server) handleEnableMaintenance(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding enable_maintenance request: %w", err))
		return
	}

	if err := s.store.EnableMaintenance(req.Formation, req.GroupID, req.NodeID); err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, struct{}{})
}

func (s *Server) handleDisableMaintenance(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding disable_maintenance request: %w", err))
		return
	}

	if err := s.store.DisableMaintenance(req.Formation, req.GroupID, req.NodeID); err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, struct{}{})
}

func (s *Server) handlePerformFailover(w http.ResponseWriter, r *http.Request) {
	var req PerformFailoverRequest
	if err := decode(r, &req); err != nil {
		writeError(w, apperrors.NewBadArgsError("decoding perform_failover request: %w", err))
		return
	}

	if err := s.store.PerformFailover(req.Formation, req.GroupID, s.cfg); err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, struct{}{})
}
