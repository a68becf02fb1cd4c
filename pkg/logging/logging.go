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

// Package logging wraps zap the way the manager binary wires its own
// logger: a single package-level instance configured once from
// persistent CLI flags, exposing leveled helpers instead of the raw
// zap API to the rest of the tree.
package logging

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Flags binds the logging-related persistent flags shared by every
// pg_autoctl subcommand.
type Flags struct {
	Level string
	JSON  bool
}

// AddFlags registers --log-level and --log-json on the given flag set.
func (f *Flags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.Level, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&f.JSON, "log-json", false, "emit logs as JSON instead of console text")
}

// ConfigureLogging builds and installs the package-level logger from
// the parsed flag values.
func (f *Flags) ConfigureLogging() {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(f.Level))

	cfg := zap.NewProductionConfig()
	if !f.JSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := cfg.Build()
	if err != nil {
		// Logging setup failing this early means stderr still works.
		fmt.Printf("could not configure logging: %v\n", err)
		return
	}

	setLogger(zapLogger)
}

var (
	mu     sync.RWMutex
	logger *zap.Logger = zap.NewNop()
)

func setLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Logr returns a logr.Logger backed by the current zap logger, for
// components (e.g. future controller-runtime style libraries) that
// take the generic logr interface.
func Logr() logr.Logger {
	return zapr.NewLogger(current())
}

// Debug logs at debug level with structured fields.
func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }

// Info logs at info level with structured fields.
func Info(msg string, fields ...zap.Field) { current().Info(msg, fields...) }

// Warning logs at warn level — used for transient failures that do
// not change local state: log and continue rather than abort.
func Warning(msg string, fields ...zap.Field) { current().Warn(msg, fields...) }

// Error logs at error level, typically just before a fatal exit.
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }

// Sync flushes any buffered log entries, best called via defer in main().
func Sync() {
	_ = current().Sync()
}
