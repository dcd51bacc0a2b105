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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/blinklabs-io/passsync/database/plugin/cache"
)

const (
	DefaultAddress = "localhost:6379"
	DefaultPrefix  = "passsync:"
)

// CacheStoreRedis is a shared cache tier backed by redis
type CacheStoreRedis struct {
	logger   *slog.Logger
	client   *redis.Client
	address  string
	password string
	prefix   string
	db       int
	timeout  time.Duration
}

// NewWithOptions creates a redis cache store. The connection is made by Start()
func NewWithOptions(opts ...RedisOptionFunc) (*CacheStoreRedis, error) {
	c := &CacheStoreRedis{}
	for _, opt := range opts {
		opt(c)
	}
	if c.address == "" {
		c.address = DefaultAddress
	}
	if c.timeout == 0 {
		c.timeout = 5 * time.Second
	}
	if c.db < 0 {
		return nil, fmt.Errorf("redis cache: invalid database index %d", c.db)
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return c, nil
}

// Start implements the plugin.Plugin interface
func (c *CacheStoreRedis) Start() error {
	c.client = redis.NewClient(&redis.Options{
		Addr:         c.address,
		Password:     c.password,
		DB:           c.db,
		DialTimeout:  c.timeout,
		ReadTimeout:  c.timeout,
		WriteTimeout: c.timeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		c.client = nil
		return fmt.Errorf("redis cache: ping %s: %w", c.address, err)
	}
	c.logger.Info(
		"connected to redis cache",
		"component", "database",
		"address", c.address,
		"db", c.db,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (c *CacheStoreRedis) Stop() error {
	return c.Close()
}

func (c *CacheStoreRedis) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *CacheStoreRedis) key(key string) string {
	return c.prefix + key
}

func (c *CacheStoreRedis) Get(ctx context.Context, key string) ([]byte, error) {
	if c.client == nil {
		return nil, errors.New("redis cache: not started")
	}
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (c *CacheStoreRedis) Set(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) error {
	if c.client == nil {
		return errors.New("redis cache: not started")
	}
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *CacheStoreRedis) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil {
		return errors.New("redis cache: not started")
	}
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, c.key(key))
	}
	return c.client.Del(ctx, prefixed...).Err()
}
