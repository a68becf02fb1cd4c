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
	"strconv"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
)

// DisabledMonitorURI is the sentinel written when --disable-monitor is
// used, so a later `config get pg_autoctl.monitor` can tell "disabled"
// from "not yet configured".
const DisabledMonitorURI = "postgresql://autoctl_disabled"

// SSLConfig mirrors the mutually-exclusive SSL flag group validated at
// CLI-parse time.
type SSLConfig struct {
	SelfSigned   bool
	NoSSL        bool
	SSLMode      string
	CAFile       string
	CRLFile      string
	ServerCert   string
	ServerKey    string
}

// PgSetup is the persisted node identity and local Postgres
// configuration.
type PgSetup struct {
	PgData            string
	PgHost            string
	PgPort            int
	Listen            string
	Username          string
	DBName            string
	Nodename          string
	Formation         string
	GroupID           int
	MonitorURI        string
	MonitorPort       int
	CandidatePriority int
	ReplicationQuorum bool
	SkipPgHBA         bool
	Auth              string
	AllowRemovingPgdata bool
	SSL               SSLConfig
}

// MonitorDisabled reports whether this node was configured with
// --disable-monitor.
func (p PgSetup) MonitorDisabled() bool {
	return p.MonitorURI == DisabledMonitorURI
}

// Store is the INI-backed ConfigStore implementation, reading and
// writing pg_autoctl.cfg.
type Store struct {
	Path string
}

// NewStore returns a Store bound to the pg_autoctl.cfg path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads PgSetup from the config file.
func (s *Store) Load() (PgSetup, error) {
	doc, err := ReadDocument(s.Path)
	if err != nil {
		return PgSetup{}, apperrors.NewBadConfigError("reading %s: %w", s.Path, err)
	}

	get := func(section, key string) string {
		v, _ := doc.Get(section, key)
		return v
	}

	p := PgSetup{
		PgData:              get("pg_autoctl", "pgdata"),
		PgHost:              get("postgresql", "pghost"),
		Username:            get("postgresql", "username"),
		DBName:              get("postgresql", "dbname"),
		Nodename:            get("pg_autoctl", "nodename"),
		Formation:           get("pg_autoctl", "formation"),
		MonitorURI:          get("pg_autoctl", "monitor"),
		Auth:                get("postgresql", "auth"),
		SkipPgHBA:           get("postgresql", "skip_pg_hba") == "true",
		AllowRemovingPgdata: get("pg_autoctl", "allow_removing_pgdata") == "true",
		ReplicationQuorum:   get("pg_autoctl", "replication_quorum") != "false",
		SSL: SSLConfig{
			SelfSigned: get("ssl", "self_signed") == "true",
			NoSSL:      get("ssl", "no_ssl") == "true",
			SSLMode:    get("ssl", "ssl_mode"),
			CAFile:     get("ssl", "ca_file"),
			CRLFile:    get("ssl", "crl_file"),
			ServerCert: get("ssl", "server_cert"),
			ServerKey:  get("ssl", "server_key"),
		},
	}

	p.Listen = get("postgresql", "listen_addresses")

	if v := get("postgresql", "pgport"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return PgSetup{}, apperrors.NewBadConfigError("invalid pgport %q in %s: %w", v, s.Path, err)
		}
		p.PgPort = port
	}

	if v := get("pg_autoctl", "group"); v != "" {
		group, err := strconv.Atoi(v)
		if err != nil {
			return PgSetup{}, apperrors.NewBadConfigError("invalid group %q in %s: %w", v, s.Path, err)
		}
		p.GroupID = group
	}

	if v := get("pg_autoctl", "candidate_priority"); v != "" {
		priority, err := strconv.Atoi(v)
		if err != nil {
			return PgSetup{}, apperrors.NewBadConfigError("invalid candidate_priority %q in %s: %w", v, s.Path, err)
		}
		p.CandidatePriority = priority
	}

	if v := get("pg_autoctl", "monitor_port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return PgSetup{}, apperrors.NewBadConfigError("invalid monitor_port %q in %s: %w", v, s.Path, err)
		}
		p.MonitorPort = port
	}

	return p, nil
}

// Save writes PgSetup to the config file.
// Only the managed keys below are touched; any other key a human
// added by hand to pg_autoctl.cfg survives the round trip.
func (s *Store) Save(p PgSetup) error {
	doc, err := ReadDocument(s.Path)
	if err != nil {
		return apperrors.NewBadConfigError("reading %s: %w", s.Path, err)
	}

	doc.Set("pg_autoctl", "pgdata", p.PgData)
	doc.Set("pg_autoctl", "nodename", p.Nodename)
	doc.Set("pg_autoctl", "formation", p.Formation)
	doc.Set("pg_autoctl", "group", strconv.Itoa(p.GroupID))
	doc.Set("pg_autoctl", "monitor", p.MonitorURI)
	doc.Set("pg_autoctl", "monitor_port", strconv.Itoa(p.MonitorPort))
	doc.Set("pg_autoctl", "candidate_priority", strconv.Itoa(p.CandidatePriority))
	doc.Set("pg_autoctl", "replication_quorum", strconv.FormatBool(p.ReplicationQuorum))
	doc.Set("pg_autoctl", "allow_removing_pgdata", strconv.FormatBool(p.AllowRemovingPgdata))

	doc.Set("postgresql", "pghost", p.PgHost)
	doc.Set("postgresql", "pgport", strconv.Itoa(p.PgPort))
	doc.Set("postgresql", "listen_addresses", p.Listen)
	doc.Set("postgresql", "username", p.Username)
	doc.Set("postgresql", "dbname", p.DBName)
	doc.Set("postgresql", "auth", p.Auth)
	doc.Set("postgresql", "skip_pg_hba", strconv.FormatBool(p.SkipPgHBA))

	doc.Set("ssl", "self_signed", strconv.FormatBool(p.SSL.SelfSigned))
	doc.Set("ssl", "no_ssl", strconv.FormatBool(p.SSL.NoSSL))
	doc.Set("ssl", "ssl_mode", p.SSL.SSLMode)
	doc.Set("ssl", "ca_file", p.SSL.CAFile)
	doc.Set("ssl", "crl_file", p.SSL.CRLFile)
	doc.Set("ssl", "server_cert", p.SSL.ServerCert)
	doc.Set("ssl", "server_key", p.SSL.ServerKey)

	if err := WriteDocument(s.Path, doc); err != nil {
		return apperrors.NewBadConfigError("writing %s: %w", s.Path, err)
	}
	return nil
}

// Get implements `config get <key>`, key given as "section.name".
func (s *Store) Get(key string) (string, error) {
	section, name, err := splitKey(key)
	if err != nil {
		return "", err
	}
	doc, err := ReadDocument(s.Path)
	if err != nil {
		return "", apperrors.NewBadConfigError("reading %s: %w", s.Path, err)
	}
	v, ok := doc.Get(section, name)
	if !ok {
		return "", apperrors.NewBadArgsError("unknown configuration key %q", key)
	}
	return v, nil
}

// SetKey implements `config set <key> <value>`.
func (s *Store) SetKey(key, value string) error {
	section, name, err := splitKey(key)
	if err != nil {
		return err
	}
	doc, err := ReadDocument(s.Path)
	if err != nil {
		return apperrors.NewBadConfigError("reading %s: %w", s.Path, err)
	}
	doc.Set(section, name, value)
	if err := WriteDocument(s.Path, doc); err != nil {
		return apperrors.NewBadConfigError("writing %s: %w", s.Path, err)
	}
	return nil
}

func splitKey(key string) (section, name string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", apperrors.NewBadArgsError("configuration key %q must be of the form section.name", key)
}
