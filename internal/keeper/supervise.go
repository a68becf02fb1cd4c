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

package keeper

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pgautoctl/pgautoctl/pkg/logging"
)

// Supervise runs the keeper loop until a stop signal arrives.
// SIGTERM, SIGINT and SIGQUIT all cancel the same context the loop and
// its in-flight tick run under, so they are handled alike apart from
// the log line; an action still running is cancelled, not awaited.
// SIGHUP is buffered on the reload channel, which is only returned once
// the loop has stopped; the configuration is not re-read while the
// keeper runs.
func (k *Keeper) Supervise(ctx context.Context) (<-chan struct{}, error) {
	reload := make(chan struct{}, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP)

	runCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-runCtx.Done():
				return
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGHUP:
					logging.Info("received SIGHUP, requesting configuration reload")
					select {
					case reload <- struct{}{}:
					default:
					}
				case syscall.SIGQUIT:
					logging.Warning("received SIGQUIT, exiting immediately")
					cancel()
					return
				default:
					logging.Info("received shutdown signal, finishing current transition", zap.String("signal", sig.String()))
					cancel()
					return
				}
			}
		}
	}()

	if err := k.Run(runCtx); err != nil && runCtx.Err() == nil {
		cancel()
		return reload, err
	}

	cancel()
	return reload, nil
}
