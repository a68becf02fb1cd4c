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

// Package apperrors defines the error kinds returned across the
// controller and the exit code each one maps to at the CLI boundary.
package apperrors

import (
	"errors"
	"fmt"
)

// ExitCode is returned by the kinds below and used by the CLI
// entrypoint to set os.Exit's argument.
type ExitCode int

// Exit codes returned by the pg_autoctl binary.
const (
	ExitOK           ExitCode = 0
	ExitBadArgs      ExitCode = 1
	ExitBadConfig    ExitCode = 12
	ExitBadState     ExitCode = 13
	ExitKeeperError  ExitCode = 14
	ExitMonitorError ExitCode = 15
	ExitPgCtlError   ExitCode = 16
	ExitInternal     ExitCode = 17
	ExitQuitFromHelp ExitCode = 127
)

// Coded is implemented by every error kind below, letting the CLI
// entrypoint map an error to its exit code with a single errors.As.
type Coded interface {
	error
	ExitCode() ExitCode
}

type kindError struct {
	kind string
	code ExitCode
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return e.kind
	}
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) ExitCode() ExitCode { return e.code }

// BadArgsError wraps a CLI argument validation failure.
type BadArgsError struct{ *kindError }

// NewBadArgsError builds a BadArgsError wrapping err.
func NewBadArgsError(format string, args ...any) *BadArgsError {
	return &BadArgsError{&kindError{kind: "BadArgs", code: ExitBadArgs, err: fmt.Errorf(format, args...)}}
}

// BadConfigError wraps a missing or invalid configuration file.
type BadConfigError struct{ *kindError }

// NewBadConfigError builds a BadConfigError wrapping err.
func NewBadConfigError(format string, args ...any) *BadConfigError {
	return &BadConfigError{&kindError{kind: "BadConfig", code: ExitBadConfig, err: fmt.Errorf(format, args...)}}
}

// BadStateError wraps an unreadable state file or an FSM violation.
type BadStateError struct{ *kindError }

// NewBadStateError builds a BadStateError wrapping err.
func NewBadStateError(format string, args ...any) *BadStateError {
	return &BadStateError{&kindError{kind: "BadState", code: ExitBadState, err: fmt.Errorf(format, args...)}}
}

// PgCtlError wraps a failed Postgres control command.
type PgCtlError struct{ *kindError }

// NewPgCtlError builds a PgCtlError wrapping err.
func NewPgCtlError(format string, args ...any) *PgCtlError {
	return &PgCtlError{&kindError{kind: "PgCtlError", code: ExitPgCtlError, err: fmt.Errorf(format, args...)}}
}

// MonitorError wraps a monitor RPC failure.
type MonitorError struct{ *kindError }

// NewMonitorError builds a MonitorError wrapping err.
func NewMonitorError(format string, args ...any) *MonitorError {
	return &MonitorError{&kindError{kind: "MonitorError", code: ExitMonitorError, err: fmt.Errorf(format, args...)}}
}

// KeeperError wraps a local transition failure.
type KeeperError struct{ *kindError }

// NewKeeperError builds a KeeperError wrapping err.
func NewKeeperError(format string, args ...any) *KeeperError {
	return &KeeperError{&kindError{kind: "KeeperError", code: ExitKeeperError, err: fmt.Errorf(format, args...)}}
}

// InternalError wraps a violated invariant — a bug, not an environmental failure.
type InternalError struct{ *kindError }

// NewInternalError builds an InternalError wrapping err.
func NewInternalError(format string, args ...any) *InternalError {
	return &InternalError{&kindError{kind: "InternalError", code: ExitInternal, err: fmt.Errorf(format, args...)}}
}

// ExitCodeFor inspects err for a Coded error kind and returns its exit
// code, defaulting to ExitInternal for unrecognized errors so that a
// bug always surfaces as "internal", never as a silent success.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitOK
	}

	var coded Coded
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}

	return ExitInternal
}
