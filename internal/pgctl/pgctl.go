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

// Package pgctl implements PostgresControl by shelling out to the
// pg_ctl/pg_basebackup/pg_rewind binaries that ship with a Postgres
// installation rather than linking against the server internals.
package pgctl

import (
	"context"
	"os/exec"

	"github.com/kballard/go-shellquote"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/pkg/postgres"
)

// ReplicationSource is the upstream a standby streams from, used by
// Basebackup, Rewind and WriteStandbySettings.
type ReplicationSource struct {
	PrimaryHost string
	PrimaryPort int
	Username    string
	Password    string
	SlotName    string
	SSLMode     string
}

// PostgresControl is the keeper's view of local Postgres control:
// every operation reports ok/failReason rather than panicking, so the
// transition executor can decide whether to abort or report
// KeeperError up to the monitor.
type PostgresControl interface {
	Initdb(ctx context.Context, pgdata string) error
	Start(ctx context.Context, pgdata string) error
	Stop(ctx context.Context, pgdata string) error
	Restart(ctx context.Context, pgdata string) error
	IsRunning(ctx context.Context, pgdata string) (bool, error)
	Promote(ctx context.Context, pgdata string) error
	Basebackup(ctx context.Context, pgdata string, src ReplicationSource) error
	Rewind(ctx context.Context, pgdata string, src ReplicationSource) error
	GetControlData(ctx context.Context, pgdata string) (postgres.ControlData, error)
	SetSSL(ctx context.Context, pgdata string, mode SSLMode) error
	AddHBA(ctx context.Context, pgdata string, rule HBARule) error
	Reload(ctx context.Context, pgdata string) error
	CreateReplicationSlot(ctx context.Context, pgdata string, name string) error
	DropReplicationSlot(ctx context.Context, pgdata string, name string) error
	SetSyncStandbyNames(ctx context.Context, pgdata string, names string) error
	GetWalLSN(ctx context.Context, pgdata string) (postgres.LSN, error)
	CreateAutoctlRole(ctx context.Context, pgdata string, password string) error
	WriteStandbySettings(ctx context.Context, pgdata string, src ReplicationSource) error
}

// SSLMode names the three SSL provisioning modes `create` accepts.
type SSLMode string

const (
	SSLModeNone       SSLMode = "none"
	SSLModeSelfSigned SSLMode = "self-signed"
	SSLModeUserProvided SSLMode = "user-provided"
)

// HBARule is one pg_hba.conf rule entry, added idempotently by AddHBA.
type HBARule struct {
	Type     string // host, hostssl, local
	Database string
	User     string
	Address  string
	Method   string
}

// Control is the subprocess-backed PostgresControl, grounded on
// pgctl.h's pg_ctl_*/pg_basebackup/pg_rewind function set.
type Control struct {
	PgCtlBinary        string
	PgBasebackupBinary string
	PgRewindBinary     string
	PsqlBinary         string
	PgPort             int
}

// NewControl returns a Control that locates binaries on PATH unless
// overridden, matching config_find_pg_ctl's fallback behavior.
func NewControl(pgPort int) *Control {
	return &Control{
		PgCtlBinary:        "pg_ctl",
		PgBasebackupBinary: "pg_basebackup",
		PgRewindBinary:     "pg_rewind",
		PsqlBinary:         "psql",
		PgPort:             pgPort,
	}
}

func (c *Control) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, apperrors.NewPgCtlError("%s %s failed: %w: %s", name, shellquote.Join(args...), err, out)
	}
	return out, nil
}
