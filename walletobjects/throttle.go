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

package walletobjects

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blinklabs-io/passsync/stripimage"
)

const (
	// DefaultNotificationLimit is the platform cap on notifications per
	// object within the window
	DefaultNotificationLimit  = 3
	DefaultNotificationWindow = 24 * time.Hour
)

// NotificationStore keeps the rolling notification log
type NotificationStore interface {
	RecordNotificationIf(
		ctx context.Context,
		objectID string,
		now time.Time,
		window time.Duration,
		allow func(sent int64) bool,
	) error
}

// Throttle decides whether a stamp update may notify the holder. Routine
// updates stop one short of the platform limit so a reward notification
// always has a slot left.
type Throttle struct {
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	store        NotificationStore
	limit        int
	window       time.Duration
	now          func() time.Time
	decisions    *prometheus.CounterVec
}

type ThrottleOptionFunc func(*Throttle)

func WithThrottleLogger(logger *slog.Logger) ThrottleOptionFunc {
	return func(t *Throttle) {
		t.logger = logger
	}
}

func WithThrottlePromRegistry(registry prometheus.Registerer) ThrottleOptionFunc {
	return func(t *Throttle) {
		t.promRegistry = registry
	}
}

func WithNotificationLimit(limit int) ThrottleOptionFunc {
	return func(t *Throttle) {
		t.limit = limit
	}
}

func WithNotificationWindow(window time.Duration) ThrottleOptionFunc {
	return func(t *Throttle) {
		t.window = window
	}
}

func NewThrottle(store NotificationStore, opts ...ThrottleOptionFunc) *Throttle {
	t := &Throttle{
		store:  store,
		limit:  DefaultNotificationLimit,
		window: DefaultNotificationWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		t.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if t.limit < 1 {
		t.limit = DefaultNotificationLimit
	}
	t.decisions = promauto.With(t.promRegistry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "passsync_walletobjects_notifications_total",
			Help: "notification throttle decisions",
		},
		[]string{"decision"},
	)
	return t
}

// Priority reports whether a transition always notifies: the card just
// filled up, or it was reset to zero
func Priority(prev int, next int, total int) bool {
	reward := stripimage.IsRewardState(next, total) && !stripimage.IsRewardState(prev, total)
	reset := next == 0 && prev > 0
	return reward || reset
}

// Decide records a notification for objectID if the transition from prev to
// next stamps may notify, and returns ErrThrottled otherwise
func (t *Throttle) Decide(
	ctx context.Context,
	objectID string,
	prev int,
	next int,
	total int,
) error {
	priority := Priority(prev, next, total)
	denied := false
	err := t.store.RecordNotificationIf(
		ctx,
		objectID,
		t.now(),
		t.window,
		func(sent int64) bool {
			if priority || sent < int64(t.limit-1) {
				return true
			}
			denied = true
			return false
		},
	)
	if denied {
		t.decisions.WithLabelValues("throttled").Inc()
		t.logger.Debug(
			"notification throttled",
			"component", "walletobjects",
			"object_id", objectID,
		)
		return ErrThrottled
	}
	if err != nil {
		return err
	}
	if priority {
		t.decisions.WithLabelValues("priority").Inc()
	} else {
		t.decisions.WithLabelValues("allowed").Inc()
	}
	return nil
}
