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

package badger

import "log/slog"

type BadgerOptionFunc func(*CacheStoreBadger)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BadgerOptionFunc {
	return func(c *CacheStoreBadger) {
		c.logger = logger
	}
}

// WithDataDir specifies the data directory. Empty keeps the cache in memory.
func WithDataDir(dataDir string) BadgerOptionFunc {
	return func(c *CacheStoreBadger) {
		c.dataDir = dataDir
	}
}

// WithBlockCacheSize specifies the block cache size
func WithBlockCacheSize(size uint64) BadgerOptionFunc {
	return func(c *CacheStoreBadger) {
		c.blockCacheSize = size
	}
}

// WithIndexCacheSize specifies the index cache size
func WithIndexCacheSize(size uint64) BadgerOptionFunc {
	return func(c *CacheStoreBadger) {
		c.indexCacheSize = size
	}
}

// WithGc specifies whether value log garbage collection runs
func WithGc(enabled bool) BadgerOptionFunc {
	return func(c *CacheStoreBadger) {
		c.gcEnabled = enabled
	}
}
