// Copyright 2026 Blink Labs Software
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

// Package testutil holds channel helpers shared by the engine and
// coordinator tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/event"
)

// RequireReceive waits for a value on ch or fails the test when the timeout
// expires
func RequireReceive[T any](
	t *testing.T,
	ch <-chan T,
	timeout time.Duration,
	msg string,
) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for channel receive: %s", msg)
		var zero T
		return zero // unreachable
	}
}

// RequireNoReceive fails the test if ch yields a value within duration
func RequireNoReceive[T any](
	t *testing.T,
	ch <-chan T,
	duration time.Duration,
	msg string,
) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value received on channel: %v: %s", v, msg)
	case <-time.After(duration):
	}
}

// RequireSyncCompleted waits for the next sync completion event delivered
// to a bus subscription and returns its payload
func RequireSyncCompleted(
	t *testing.T,
	ch <-chan event.Event,
	timeout time.Duration,
) event.SyncCompletedEvent {
	t.Helper()
	evt := RequireReceive(t, ch, timeout, "sync completed event")
	require.Equal(t, event.SyncCompletedEventType, evt.Type)
	data, ok := evt.Data.(event.SyncCompletedEvent)
	require.True(t, ok, "unexpected event payload %T", evt.Data)
	return data
}
