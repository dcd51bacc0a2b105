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

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/database/plugin/cache"
)

func newTestStore(t *testing.T) (*CacheStoreRedis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewWithOptions(
		WithAddress(mr.Addr()),
		WithPrefix("test:"),
	)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestStore(t)

	_, err := c.Get(ctx, "cert:b1")
	require.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "cert:b1", []byte("sealed"), time.Hour))
	val, err := c.Get(ctx, "cert:b1")
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), val)
	// Keys are stored with the prefix
	assert.True(t, mr.Exists("test:cert:b1"))

	require.NoError(t, c.Set(ctx, "cert:b2", []byte("other"), time.Hour))
	require.NoError(t, c.Delete(ctx, "cert:b1", "cert:b2", "cert:absent"))
	_, err = c.Get(ctx, "cert:b2")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
	require.NoError(t, c.Delete(ctx))
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestStore(t)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(59 * time.Second)
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestStartFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	c, err := NewWithOptions(
		WithAddress(addr),
		WithTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)
	require.Error(t, c.Start())
	_, err = c.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestInvalidDB(t *testing.T) {
	_, err := NewWithOptions(WithDB(-1))
	require.Error(t, err)
}
