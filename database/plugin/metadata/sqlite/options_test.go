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

package sqlite

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m, err := NewWithOptions(
		WithDataDir("/tmp/test"),
		WithLogger(logger),
		WithPromRegistry(reg),
		WithMaxConnections(10),
		WithBusyTimeout(2*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test", m.dataDir)
	assert.Same(t, logger, m.logger)
	assert.Equal(t, reg, m.promRegistry)
	assert.Equal(t, 10, m.maxConnections)
	assert.Equal(t, 2*time.Second, m.busyTimeout)
}

func TestDefaults(t *testing.T) {
	m, err := NewWithOptions(WithMaxConnections(-3))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConnections, m.maxConnections)
	assert.Equal(t, DefaultBusyTimeout, m.busyTimeout)
	assert.NotNil(t, m.logger)
	// Nothing opened yet
	assert.NoError(t, m.Close())
}
