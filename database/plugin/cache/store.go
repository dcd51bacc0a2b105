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

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/passsync/database/plugin"
)

var ErrCacheMiss = errors.New("cache miss")

// CacheStore is a key/value store with per-entry expiry shared between
// processes
type CacheStore interface {
	Close() error
	// Get returns ErrCacheMiss for absent or expired keys
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// New returns the started cache plugin selected by name
func New(pluginName string) (CacheStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeCache, pluginName)
	if err != nil {
		return nil, err
	}
	cacheStore, ok := p.(CacheStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement CacheStore interface",
			pluginName,
		)
	}
	return cacheStore, nil
}
