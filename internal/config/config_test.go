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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	_ "github.com/blinklabs-io/passsync/database/plugin/metadata/sqlite"
)

func resetGlobalConfig() {
	globalConfig = defaultConfig()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "passsync.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return tmpFile
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(cfg, defaultConfig()) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			defaultConfig(),
			cfg,
		)
	}
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
databasePath: "/var/lib/passsync"
metadataPlugin: "postgres"
assetPlugin: "gcs"
cachePlugin: "redis"
bindAddr: "127.0.0.1"
publicUrl: "https://passes.example.com"
port: 9000
metricsPort: 9001
syncTimeout: "10s"
syncWorkers: 4
certificatePool: false
fallbackPolicy: "forbid"
fallbackDir: "/etc/passsync/fallback"
issuerId: "3388000000012345678"
serviceAccountFile: "/etc/passsync/sa.json"
saveOrigins:
  - "https://shop.example.com"
notificationLimit: 5
tracingEnabled: true
`
	expected := defaultConfig()
	expected.DatabasePath = "/var/lib/passsync"
	expected.MetadataPlugin = "postgres"
	expected.AssetPlugin = "gcs"
	expected.CachePlugin = "redis"
	expected.BindAddr = "127.0.0.1"
	expected.PublicURL = "https://passes.example.com"
	expected.Port = 9000
	expected.MetricsPort = 9001
	expected.SyncTimeout = "10s"
	expected.SyncWorkers = 4
	expected.CertificatePool = false
	expected.FallbackPolicy = "forbid"
	expected.FallbackDir = "/etc/passsync/fallback"
	expected.IssuerID = "3388000000012345678"
	expected.ServiceAccountFile = "/etc/passsync/sa.json"
	expected.SaveOrigins = []string{"https://shop.example.com"}
	expected.NotificationLimit = 5
	expected.TracingEnabled = true

	actual, err := LoadConfig(writeConfig(t, yamlContent))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
	if !actual.WalletObjectsEnabled() {
		t.Errorf("expected wallet objects to be enabled")
	}
	if actual.SyncTimeoutDuration() != 10*time.Second {
		t.Errorf("expected sync timeout of 10s, got: %s", actual.SyncTimeoutDuration())
	}
}

func TestLoad_ConfigSection(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
config:
  port: 7000
database:
  metadata:
    plugin: sqlite
    sqlite:
      max-connections: 2
`
	cfg, err := LoadConfig(writeConfig(t, yamlContent))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("expected port 7000, got: %d", cfg.Port)
	}
	if cfg.MetadataPlugin != "sqlite" {
		t.Errorf("expected sqlite metadata plugin, got: %s", cfg.MetadataPlugin)
	}
}

func TestLoad_ConfigSectionKeepsDefaults(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
config:
  port: 7000
  syncTimeout: 5s
`
	cfg, err := LoadConfig(writeConfig(t, yamlContent))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	expected := defaultConfig()
	expected.Port = 7000
	expected.SyncTimeout = "5s"
	if !reflect.DeepEqual(cfg, expected) {
		t.Fatalf("config section did not overlay defaults\n  got: %#v\n  expected: %#v", cfg, expected)
	}
	if !cfg.CertificatePool {
		t.Errorf("expected the certificate pool to stay enabled")
	}
}

func TestLoad_ConfigSectionNotAMap(t *testing.T) {
	resetGlobalConfig()
	if _, err := LoadConfig(writeConfig(t, "config: [1, 2]\n")); err == nil {
		t.Fatalf("expected an error for a list config section")
	}
}

func TestLoad_UnknownPluginSection(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
database:
  cache:
    plugin: memcached
    memcached:
      address: "localhost:11211"
`
	if _, err := LoadConfig(writeConfig(t, yamlContent)); err == nil {
		t.Fatalf("expected an error for an unregistered plugin")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("PASSSYNC_MASTER_SECRET", "s3cret")
	t.Setenv("PASSSYNC_PORT", "8443")
	t.Setenv("PASSSYNC_APNS_PRODUCTION", "true")
	t.Setenv("PASSSYNC_SAVE_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := LoadConfig(writeConfig(t, "port: 9000\n"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.MasterSecret != "s3cret" {
		t.Errorf("expected master secret from environment, got: %q", cfg.MasterSecret)
	}
	if cfg.Port != 8443 {
		t.Errorf("expected environment to override file port, got: %d", cfg.Port)
	}
	if !cfg.APNsProduction {
		t.Errorf("expected production push environment")
	}
	if len(cfg.SaveOrigins) != 2 {
		t.Errorf("expected two save origins, got: %v", cfg.SaveOrigins)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "fallback policy", yaml: `fallbackPolicy: "sometimes"`},
		{name: "sync timeout", yaml: `syncTimeout: "soon"`},
		{name: "negative timeout", yaml: `shutdownTimeout: "-1s"`},
		{name: "service account without issuer", yaml: `serviceAccountFile: "sa.json"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resetGlobalConfig()
			if _, err := LoadConfig(writeConfig(t, tc.yaml)); err == nil {
				t.Fatalf("expected a validation error")
			}
		})
	}
}

func TestListPlugins(t *testing.T) {
	if err := ListPlugins("metadata", "sqlite"); err != nil {
		t.Fatalf("expected no error for a selected plugin, got: %v", err)
	}
	if err := ListPlugins("metadata", "list"); !errors.Is(err, ErrPluginListRequested) {
		t.Fatalf("expected ErrPluginListRequested, got: %v", err)
	}
	if err := ListPlugins("bogus", "list"); err == nil {
		t.Fatalf("expected an error for an unknown plugin type")
	}
}

func TestContext(t *testing.T) {
	cfg := defaultConfig()
	ctx := WithContext(context.Background(), cfg)
	if FromContext(ctx) != cfg {
		t.Errorf("expected config from context")
	}
	if FromContext(context.Background()) != nil {
		t.Errorf("expected nil config from empty context")
	}
}
