// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package passsync

import (
	"context"
	"time"
)

const (
	// callbackNonceRetention outlives the replay window of signed callbacks
	callbackNonceRetention = 7 * 24 * time.Hour
	// notificationLogRetention covers the rolling quota window
	notificationLogRetention = 48 * time.Hour
)

func (e *Engine) maintenanceLoop(ctx context.Context) {
	defer e.maintenanceWg.Done()
	if e.config.pruneInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.config.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.prune(ctx, now)
		}
	}
}

// prune removes callback nonces and notification log rows that can no longer
// affect a decision
func (e *Engine) prune(ctx context.Context, now time.Time) {
	nonces, err := e.db.PruneCallbackNonces(ctx, now.Add(-callbackNonceRetention))
	if err != nil {
		e.config.logger.Error(
			"failed to prune callback nonces",
			"component", "passsync",
			"error", err,
		)
	}
	sends, err := e.db.PruneNotificationLog(ctx, now.Add(-notificationLogRetention))
	if err != nil {
		e.config.logger.Error(
			"failed to prune notification log",
			"component", "passsync",
			"error", err,
		)
	}
	if nonces > 0 || sends > 0 {
		e.config.logger.Debug(
			"pruned expired records",
			"component", "passsync",
			"callback_nonces", nonces,
			"notifications", sends,
		)
	}
}
