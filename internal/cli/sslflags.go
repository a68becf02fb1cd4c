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

// Package cli is the command tree: create, drop, run, show, config,
// enable, disable, perform, do, built on cobra/pflag.
package cli

import (
	"github.com/spf13/pflag"

	"github.com/pgautoctl/pgautoctl/internal/apperrors"
	"github.com/pgautoctl/pgautoctl/internal/config"
)

// SSLFlags binds the mutually exclusive SSL option group: self-signed,
// no-ssl, and user-provided are never combined.
type SSLFlags struct {
	SelfSigned bool
	NoSSL      bool
	SSLMode    string
	CAFile     string
	CRLFile    string
	ServerCert string
	ServerKey  string
}

// AddFlags registers the SSL flag group on a create/enable command.
func (f *SSLFlags) AddFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&f.SelfSigned, "ssl-self-signed", false, "generate a self-signed certificate")
	flags.BoolVar(&f.NoSSL, "no-ssl", false, "disable SSL entirely")
	flags.StringVar(&f.SSLMode, "ssl-mode", "", "libpq sslmode for connections to this node")
	flags.StringVar(&f.CAFile, "ssl-ca-file", "", "path to a CA certificate file")
	flags.StringVar(&f.CRLFile, "ssl-crl-file", "", "path to a certificate revocation list")
	flags.StringVar(&f.ServerCert, "server-cert", "", "path to the server certificate")
	flags.StringVar(&f.ServerKey, "server-key", "", "path to the server private key")
}

// userProvided reports whether any of the "bring your own certificate"
// flags were set.
func (f *SSLFlags) userProvided() bool {
	return f.CAFile != "" || f.CRLFile != "" || f.ServerCert != "" || f.ServerKey != ""
}

// Validate enforces the mutual exclusion matrix: at most one of
// self-signed, no-ssl, user-provided may be requested at once.
func (f *SSLFlags) Validate() error {
	selected := 0
	if f.SelfSigned {
		selected++
	}
	if f.NoSSL {
		selected++
	}
	if f.userProvided() {
		selected++
	}

	if selected > 1 {
		return apperrors.NewBadArgsError("--ssl-self-signed, --no-ssl and user-provided certificate flags are mutually exclusive")
	}

	if f.userProvided() && (f.CAFile == "" || f.ServerCert == "" || f.ServerKey == "") {
		return apperrors.NewBadArgsError("user-provided SSL requires --ssl-ca-file, --server-cert and --server-key together")
	}

	return nil
}

// ToConfig converts the validated flags into the persisted SSLConfig shape.
func (f *SSLFlags) ToConfig() config.SSLConfig {
	return config.SSLConfig{
		SelfSigned: f.SelfSigned,
		NoSSL:      f.NoSSL,
		SSLMode:    f.SSLMode,
		CAFile:     f.CAFile,
		CRLFile:    f.CRLFile,
		ServerCert: f.ServerCert,
		ServerKey:  f.ServerKey,
	}
}
