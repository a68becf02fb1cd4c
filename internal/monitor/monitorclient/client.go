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

// Package monitorclient is the keeper-side half of the wire protocol:
// an HTTP connection to the monitor's RPC listener, carrying the
// register/nodeActive/removeNode surface MonitorClient names.
// internal/monitor never imports this package — the monitor process
// embeds a Store behind internal/monitor/monitorserver and exposes it
// over the same surface from the other side.
package monitorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/fsm"
	"github.com/pgautoctl/pgautoctl/internal/monitor"
	"github.com/pgautoctl/pgautoctl/internal/monitor/monitorserver"
)

// MonitorClient is the keeper's view of the monitor.
type MonitorClient interface {
	RegisterNode(ctx context.Context, formation string, groupID int, nodename string, pgPort int, candidatePriority int, replicationQuorum bool) (monitor.NodeID, fsm.NodeState, error)
	NodeActive(ctx context.Context, formation string, groupID int, observed monitor.NodeObserved) (monitor.Assignment, error)
	RemoveNode(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error
	SetSyncStandbyNames(ctx context.Context, formation string, groupID int, names string) error
	GetNodes(ctx context.Context, formation string, groupID int) ([]monitor.Node, error)
	GetEvents(ctx context.Context, formation string, groupID int, count int) ([]monitor.Event, error)
	FormationURI(ctx context.Context, formation string) (string, error)
	EnableMaintenance(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error
	DisableMaintenance(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error
	PerformFailover(ctx context.Context, formation string, groupID int) error
	SyncStandbyNames(ctx context.Context, formation string, groupID int) (string, error)
	Close() error
}

// Client is the HTTP-backed MonitorClient: every RPC is a single JSON
// POST against the monitor's monitorserver.Server listener, rather
// than a bespoke binary protocol.
type Client struct {
	baseURL string
	http    *http.Client
}

// Dial checks that a monitor is reachable at baseURL (e.g.
// "http://monitor-host:8431", the value persisted as pg_autoctl.monitor)
// and returns a Client bound to it.
func Dial(baseURL string) (*Client, error) {
	c := &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return nil, apperrors.NewMonitorError("building health check request for %s: %w", baseURL, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewMonitorError("could not reach monitor at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewMonitorError("monitor at %s is unhealthy: status %d", baseURL, resp.StatusCode)
	}

	return c, nil
}

func (c *Client) Close() error { return nil }

// call POSTs req as JSON to path and decodes the response into resp,
// translating a non-2xx status into a MonitorError carrying the
// server's reported message.
func (c *Client) call(ctx context.Context, path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return apperrors.NewMonitorError("encoding request for %s: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewMonitorError("building request for %s: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return apperrors.NewMonitorError("calling %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errBody monitorserver.ErrorResponse
		raw, _ := io.ReadAll(httpResp.Body)
		_ = json.Unmarshal(raw, &errBody)
		if errBody.Message == "" {
			errBody.Message = string(raw)
		}
		return apperrors.NewMonitorError("%s failed: %s", path, errBody.Message)
	}

	if resp == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return apperrors.NewMonitorError("decoding response from %s: %w", path, err)
	}
	return nil
}

// RegisterNode registers this node with the monitor, returning the
// allocated nodeId and the initial assigned state.
func (c *Client) RegisterNode(ctx context.Context, formation string, groupID int, nodename string, pgPort int, candidatePriority int, replicationQuorum bool) (monitor.NodeID, fsm.NodeState, error) {
	var resp monitorserver.RegisterNodeResponse
	err := c.call(ctx, "/nodes/register", monitorserver.RegisterNodeRequest{
		Formation:         formation,
		GroupID:           groupID,
		Nodename:          nodename,
		PgPort:            pgPort,
		CandidatePriority: candidatePriority,
		ReplicationQuorum: replicationQuorum,
	}, &resp)
	if err != nil {
		return 0, "", err
	}
	return resp.NodeID, resp.GoalState, nil
}

// NodeActive is the monitor's central RPC: report observed state,
// receive the freshly computed assignment.
func (c *Client) NodeActive(ctx context.Context, formation string, groupID int, observed monitor.NodeObserved) (monitor.Assignment, error) {
	var resp monitorserver.NodeActiveResponse
	err := c.call(ctx, "/nodes/active", monitorserver.NodeActiveRequest{
		Formation: formation,
		GroupID:   groupID,
		Observed:  observed,
	}, &resp)
	return resp.Assignment, err
}

// RemoveNode removes a node from its group.
func (c *Client) RemoveNode(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return c.call(ctx, "/nodes/remove", monitorserver.RemoveNodeRequest{
		Formation: formation,
		GroupID:   groupID,
		NodeID:    nodeID,
	}, nil)
}

// SetSyncStandbyNames forces the group's synchronous_standby_names to
// names; the monitor's next NodeActive recomputes it as usual.
func (c *Client) SetSyncStandbyNames(ctx context.Context, formation string, groupID int, names string) error {
	return c.call(ctx, "/standby-names/set", monitorserver.SetSyncStandbyNamesRequest{
		Formation: formation,
		GroupID:   groupID,
		Names:     names,
	}, nil)
}

// GetNodes lists every node the monitor knows about in a group, used by
// `show nodes`.
func (c *Client) GetNodes(ctx context.Context, formation string, groupID int) ([]monitor.Node, error) {
	var resp monitorserver.GetNodesResponse
	err := c.call(ctx, "/nodes/list", monitorserver.GetNodesRequest{Formation: formation, GroupID: groupID}, &resp)
	return resp.Nodes, err
}

// GetEvents lists recent events for a group, used by `show events`.
func (c *Client) GetEvents(ctx context.Context, formation string, groupID int, count int) ([]monitor.Event, error) {
	var resp monitorserver.GetEventsResponse
	err := c.call(ctx, "/events/list", monitorserver.GetEventsRequest{Formation: formation, GroupID: groupID, Count: count}, &resp)
	return resp.Events, err
}

// EnableMaintenance takes a node out of the replication quorum, used by
// `enable maintenance`.
func (c *Client) EnableMaintenance(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return c.call(ctx, "/maintenance/enable", monitorserver.MaintenanceRequest{
		Formation: formation,
		GroupID:   groupID,
		NodeID:    nodeID,
	}, nil)
}

// DisableMaintenance asks a node in maintenance to rejoin the group,
// used by `disable maintenance`.
func (c *Client) DisableMaintenance(ctx context.Context, formation string, groupID int, nodeID monitor.NodeID) error {
	return c.call(ctx, "/maintenance/disable", monitorserver.MaintenanceRequest{
		Formation: formation,
		GroupID:   groupID,
		NodeID:    nodeID,
	}, nil)
}

// PerformFailover forces the current writable node to be treated as
// unhealthy, used by `perform failover`/`perform switchover`.
func (c *Client) PerformFailover(ctx context.Context, formation string, groupID int) error {
	return c.call(ctx, "/failover", monitorserver.PerformFailoverRequest{Formation: formation, GroupID: groupID}, nil)
}

// SyncStandbyNames returns the group's currently computed
// synchronous_standby_names setting, used by `show synchronous_standby_names`.
func (c *Client) SyncStandbyNames(ctx context.Context, formation string, groupID int) (string, error) {
	var resp monitorserver.SyncStandbyNamesResponse
	err := c.call(ctx, "/standby-names/get", monitorserver.SyncStandbyNamesRequest{Formation: formation, GroupID: groupID}, &resp)
	return resp.Names, err
}

// FormationURI returns the formation's connection string, used by
// `show uri`.
func (c *Client) FormationURI(ctx context.Context, formation string) (string, error) {
	var resp monitorserver.FormationURIResponse
	err := c.call(ctx, "/formation/uri", monitorserver.FormationURIRequest{Formation: formation}, &resp)
	return resp.URI, err
}
