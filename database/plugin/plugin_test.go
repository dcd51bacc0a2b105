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

package plugin_test

import (
	"testing"

	"github.com/blinklabs-io/passsync/database/plugin"
	_ "github.com/blinklabs-io/passsync/database/plugin/asset/local"
	_ "github.com/blinklabs-io/passsync/database/plugin/cache/badger"
	_ "github.com/blinklabs-io/passsync/database/plugin/metadata/sqlite"
	"github.com/blinklabs-io/passsync/internal/config"
)

// Basic tests for SetPluginOption to ensure programmatic option setting works
func TestSetPluginOption_SuccessAndTypeCheck(t *testing.T) {
	// Note: This test mutates global plugin state (cmdlineOptions in subpackages).
	// Tests in this package run sequentially.

	// Set data-dir for sqlite plugin to an empty string (in-memory) and ensure no error
	if err := plugin.SetPluginOption(plugin.PluginTypeMetadata, config.DefaultMetadataPlugin, "data-dir", ""); err != nil {
		t.Fatalf("unexpected error setting sqlite data-dir: %v", err)
	}

	// Setting with wrong type should return an error
	if err := plugin.SetPluginOption(plugin.PluginTypeMetadata, config.DefaultMetadataPlugin, "data-dir", 123); err == nil {
		t.Fatalf(
			"expected type error when setting sqlite data-dir with int, got nil",
		)
	}

	// Setting an unknown option is a no-op (non-fatal) so should not return an error
	if err := plugin.SetPluginOption(plugin.PluginTypeMetadata, config.DefaultMetadataPlugin, "does-not-exist", "x"); err != nil {
		t.Fatalf("unexpected error when setting unknown option: %v", err)
	}

	// Int options
	if err := plugin.SetPluginOption(plugin.PluginTypeMetadata, config.DefaultMetadataPlugin, "max-connections", 2); err != nil {
		t.Fatalf("unexpected error setting sqlite max-connections: %v", err)
	}

	// Asset plugin options
	if err := plugin.SetPluginOption(plugin.PluginTypeAsset, config.DefaultAssetPlugin, "data-dir", t.TempDir()); err != nil {
		t.Fatalf("unexpected error setting local asset data-dir: %v", err)
	}

	// Test uint option handling for badger block-cache-size
	if err := plugin.SetPluginOption(plugin.PluginTypeCache, "badger", "block-cache-size", uint64(100000000)); err != nil {
		t.Fatalf("unexpected error setting badger block-cache-size: %v", err)
	}

	// Non-negative ints are accepted for uint options
	if err := plugin.SetPluginOption(plugin.PluginTypeCache, "badger", "index-cache-size", 1000); err != nil {
		t.Fatalf("unexpected error setting badger index-cache-size: %v", err)
	}
	if err := plugin.SetPluginOption(plugin.PluginTypeCache, "badger", "index-cache-size", -1); err == nil {
		t.Fatalf("expected error setting negative badger index-cache-size")
	}

	// Test bool option handling for badger gc
	if err := plugin.SetPluginOption(plugin.PluginTypeCache, "badger", "gc", true); err != nil {
		t.Fatalf("unexpected error setting badger gc: %v", err)
	}

	// Test plugin not found error
	if err := plugin.SetPluginOption(plugin.PluginTypeMetadata, "nonexistent", "data-dir", t.TempDir()); err == nil {
		t.Fatalf(
			"expected error when setting option for nonexistent plugin, got nil",
		)
	}
}

func TestStartPlugin(t *testing.T) {
	if err := plugin.SetPluginOption(plugin.PluginTypeCache, "badger", "data-dir", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := plugin.StartPlugin(plugin.PluginTypeCache, "badger")
	if err != nil {
		t.Fatalf("unexpected error starting badger cache: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("unexpected error stopping badger cache: %v", err)
	}

	if _, err := plugin.StartPlugin(plugin.PluginTypeCache, "nonexistent"); err == nil {
		t.Fatalf("expected error starting nonexistent plugin")
	}
}

func TestProcessConfig(t *testing.T) {
	dir := t.TempDir()
	err := plugin.ProcessConfig(map[string]map[string]map[string]any{
		"assets": {
			"local": {
				"data-dir": dir,
				"base-url": "https://cdn.example.com/assets",
			},
		},
		"cache": {
			"badger": {
				// YAML decodes integers as int
				"block-cache-size": 1024,
				"gc":               false,
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = plugin.ProcessConfig(map[string]map[string]map[string]any{
		"bogus": {},
	})
	if err == nil {
		t.Fatalf("expected error for unknown plugin type")
	}
}

func TestProcessEnvVars(t *testing.T) {
	t.Setenv("PASSSYNC_METADATA_SQLITE_MAX_CONNECTIONS", "3")
	t.Setenv("PASSSYNC_CACHE_BADGER_GC", "false")
	if err := plugin.ProcessEnvVars(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Setenv("PASSSYNC_CACHE_BADGER_GC", "not-a-bool")
	if err := plugin.ProcessEnvVars(); err == nil {
		t.Fatalf("expected error for invalid bool")
	}
}
