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

package postgres

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m, err := NewWithOptions(
		WithHost("db.local"),
		WithPort(6543),
		WithUser("passsync"),
		WithPassword("secret"),
		WithDatabase("wallets"),
		WithSSLMode("require"),
		WithTimeZone("Europe/Berlin"),
		WithLogger(logger),
		WithPromRegistry(reg),
	)
	require.NoError(t, err)
	assert.Equal(t, "db.local", m.host)
	assert.Equal(t, uint(6543), m.port)
	assert.Equal(t, "passsync", m.user)
	assert.Equal(t, "secret", m.password)
	assert.Equal(t, "wallets", m.database)
	assert.Equal(t, "require", m.sslMode)
	assert.Equal(t, "Europe/Berlin", m.timeZone)
	assert.Same(t, logger, m.logger)
	assert.Equal(t, reg, m.promRegistry)
}

func TestDefaults(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.Equal(
		t,
		"host=localhost user=postgres password= dbname=passsync port=5432 sslmode=disable TimeZone=UTC",
		m.buildDSN(),
	)
	assert.NotNil(t, m.logger)
}

func TestDSNOverridesFields(t *testing.T) {
	m, err := NewWithOptions(
		WithHost("ignored"),
		WithDSN("  host=db dbname=passsync  "),
	)
	require.NoError(t, err)
	assert.Equal(t, "host=db dbname=passsync", m.buildDSN())
}

func TestCloseWithoutStart(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.NoError(t, m.Close())
}

func TestPoolSizing(t *testing.T) {
	testDefs := []struct {
		name     string
		opts     []int
		wantOpen int
		wantIdle int
	}{
		{name: "defaults", wantOpen: DefaultMaxConnections, wantIdle: DefaultMaxIdleConnections},
		{name: "explicit", opts: []int{50, 20}, wantOpen: 50, wantIdle: 20},
		{name: "idle above open", opts: []int{4, 10}, wantOpen: 4, wantIdle: 4},
		{name: "negative", opts: []int{-1, -1}, wantOpen: DefaultMaxConnections, wantIdle: DefaultMaxIdleConnections},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			var opts []PostgresOptionFunc
			if len(testDef.opts) == 2 {
				opts = append(
					opts,
					WithMaxConnections(testDef.opts[0]),
					WithMaxIdleConnections(testDef.opts[1]),
				)
			}
			m, err := NewWithOptions(opts...)
			require.NoError(t, err)
			assert.Equal(t, testDef.wantOpen, m.maxConnections)
			assert.Equal(t, testDef.wantIdle, m.maxIdleConnections)
		})
	}
}
