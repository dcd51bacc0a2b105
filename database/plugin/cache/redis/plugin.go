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
	"sync"

	"github.com/blinklabs-io/passsync/database/plugin"
)

var (
	cmdlineOptions struct {
		address  string
		password string
		prefix   string
		db       int
	}
	cmdlineOptionsMutex sync.RWMutex
)

// initCmdlineOptions sets default values for cmdlineOptions
func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.address = DefaultAddress
	cmdlineOptions.prefix = DefaultPrefix
}

// Register plugin
func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeCache,
			Name:               "redis",
			Description:        "Redis shared cache",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "address",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Redis host:port",
					DefaultValue: DefaultAddress,
					Dest:         &(cmdlineOptions.address),
				},
				{
					Name:         "password",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Redis password",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.password),
				},
				{
					Name:         "prefix",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Prefix added to every cache key",
					DefaultValue: DefaultPrefix,
					Dest:         &(cmdlineOptions.prefix),
				},
				{
					Name:         "db",
					Type:         plugin.PluginOptionTypeInt,
					Description:  "Redis database index",
					DefaultValue: 0,
					Dest:         &(cmdlineOptions.db),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := []RedisOptionFunc{
		WithAddress(cmdlineOptions.address),
		WithPassword(cmdlineOptions.password),
		WithPrefix(cmdlineOptions.prefix),
		WithDB(cmdlineOptions.db),
	}
	cmdlineOptionsMutex.RUnlock()
	p, err := NewWithOptions(opts...)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
