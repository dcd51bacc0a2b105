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

package certmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	tierLocal  = "local"
	tierShared = "shared"
	tierStore  = "store"
)

type managerMetrics struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses prometheus.Counter
	claims      *prometheus.CounterVec
	fallbacks   prometheus.Counter
}

func (m *managerMetrics) init(registry prometheus.Registerer) {
	factory := promauto.With(registry)
	m.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passsync_certificate_cache_hits_total",
			Help: "certificate lookups served by tier",
		},
		[]string{"tier"},
	)
	m.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Name: "passsync_certificate_cache_misses_total",
		Help: "certificate lookups with no assigned certificate",
	})
	m.claims = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passsync_certificate_claims_total",
			Help: "certificate pool claim attempts by result",
		},
		[]string{"result"},
	)
	m.fallbacks = factory.NewCounter(prometheus.CounterOpts{
		Name: "passsync_certificate_fallback_total",
		Help: "lookups served by the shared fallback certificate",
	})
}
