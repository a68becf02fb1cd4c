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

import "time"

// DecisionConfig holds the timeouts and thresholds the decision engine
// evaluates on every NodeActive call.
type DecisionConfig struct {
	// NetworkPartitionTimeout: a silent node is declared unhealthy
	// after this much time without a heartbeat. Default 20s.
	NetworkPartitionTimeout time.Duration

	// PostgresqlRestartFailureTimeout: how long a node may report
	// pgIsRunning=false before it is declared unhealthy. Default 20s.
	PostgresqlRestartFailureTimeout time.Duration

	// PreparePromotionCatchup: max wait for a promotion candidate to
	// reach the max LSN before the failover aborts. Default 30s.
	PreparePromotionCatchup time.Duration

	// PreparePromotionWalReceiver: max wait for walreceiver shutdown
	// on the promoted standby. Default 5s.
	PreparePromotionWalReceiver time.Duration

	// ReplicationLagBytes: a CATCHINGUP standby moves to SECONDARY
	// once its lag is within this many bytes of the primary. Default 16MB.
	ReplicationLagBytes int64
}

// DefaultDecisionConfig returns reasonable production defaults.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		NetworkPartitionTimeout:         20 * time.Second,
		PostgresqlRestartFailureTimeout: 20 * time.Second,
		PreparePromotionCatchup:         30 * time.Second,
		PreparePromotionWalReceiver:     5 * time.Second,
		ReplicationLagBytes:             16 * 1024 * 1024,
	}
}
