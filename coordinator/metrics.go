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

package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blinklabs-io/passsync/event"
	"github.com/blinklabs-io/passsync/loyalty"
)

type coordinatorMetrics struct {
	syncs        *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	stripRenders *prometheus.CounterVec
}

func newCoordinatorMetrics(registry prometheus.Registerer) *coordinatorMetrics {
	promautoFactory := promauto.With(registry)
	return &coordinatorMetrics{
		syncs: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passsync_sync_total",
				Help: "platform syncs by trigger, platform and status",
			},
			[]string{"trigger", "platform", "status"},
		),
		syncDuration: promautoFactory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passsync_sync_duration_seconds",
				Help:    "duration of one platform sync",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"platform"},
		),
		stripRenders: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passsync_strip_matrix_renders_total",
				Help: "strip image matrix renders by result",
			},
			[]string{"result"},
		),
	}
}

func (m *coordinatorMetrics) record(
	trigger event.EventType,
	platform loyalty.Platform,
	status Status,
	elapsed time.Duration,
) {
	m.syncs.WithLabelValues(string(trigger), string(platform), string(status)).Inc()
	m.syncDuration.WithLabelValues(string(platform)).Observe(elapsed.Seconds())
}
