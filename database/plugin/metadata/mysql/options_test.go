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

package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSNFromFields(t *testing.T) {
	m, err := NewWithOptions(
		WithHost("db.local"),
		WithPort(3307),
		WithUser("wallet"),
		WithPassword("secret"),
		WithDatabase("passes"),
		WithSSLMode("skip-verify"),
	)
	require.NoError(t, err)
	dsn, dbName := m.buildDSN()
	assert.Equal(t, "passes", dbName)
	assert.Contains(t, dsn, "wallet:secret@tcp(db.local:3307)/passes")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tls=skip-verify")
}

func TestBuildDSNOverride(t *testing.T) {
	m, err := NewWithOptions(
		WithDatabase("ignored"),
		WithDSN("u:p@tcp(h:3306)/wallets?parseTime=true"),
	)
	require.NoError(t, err)
	dsn, dbName := m.buildDSN()
	assert.Equal(t, "u:p@tcp(h:3306)/wallets?parseTime=true", dsn)
	assert.Equal(t, "wallets", dbName)
}

func TestParseAndStripDatabase(t *testing.T) {
	testDefs := []struct {
		dsn      string
		database string
		admin    string
	}{
		{
			dsn:      "u:p@tcp(h:3306)/wallets",
			database: "wallets",
			admin:    "u:p@tcp(h:3306)/",
		},
		{
			dsn:      "u:p@tcp(h:3306)/wallets?parseTime=true",
			database: "wallets",
			admin:    "u:p@tcp(h:3306)/?parseTime=true",
		},
		{
			dsn:   "u:p@tcp(h:3306)/",
			admin: "u:p@tcp(h:3306)/",
		},
	}
	for _, testDef := range testDefs {
		database, ok := parseMysqlDatabaseFromDSN(testDef.dsn)
		assert.Equal(t, testDef.database != "", ok, testDef.dsn)
		assert.Equal(t, testDef.database, database, testDef.dsn)
		admin, ok := stripDatabaseFromDSN(testDef.dsn)
		require.True(t, ok, testDef.dsn)
		assert.Equal(t, testDef.admin, admin, testDef.dsn)
	}
}

func TestDefaults(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost", m.host)
	assert.Equal(t, uint(3306), m.port)
	assert.Equal(t, "root", m.user)
	assert.Equal(t, "passsync", m.database)
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
			var opts []MysqlOptionFunc
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
