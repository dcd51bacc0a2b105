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
	"log/slog"
	"time"
)

type RedisOptionFunc func(*CacheStoreRedis)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) RedisOptionFunc {
	return func(c *CacheStoreRedis) {
		c.logger = logger
	}
}

// WithAddress specifies the redis host:port
func WithAddress(address string) RedisOptionFunc {
	return func(c *CacheStoreRedis) {
		c.address = address
	}
}

// WithPassword specifies the redis password
func WithPassword(password string) RedisOptionFunc {
	return func(c *CacheStoreRedis) {
		c.password = password
	}
}

// WithDB specifies the redis database index
func WithDB(db int) RedisOptionFunc {
	return func(c *CacheStoreRedis) {
		c.db = db
	}
}

// WithPrefix specifies a prefix added to every key
func WithPrefix(prefix string) RedisOptionFunc {
	return func(c *CacheStoreRedis) {
		c.prefix = prefix
	}
}

// WithTimeout specifies the dial, read and write timeout
func WithTimeout(timeout time.Duration) RedisOptionFunc {
	return func(c *CacheStoreRedis) {
		c.timeout = timeout
	}
}
