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
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/database/plugin"
)

type ctxKey string

const configContextKey ctxKey = "passsync.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultSyncTimeout     = "30s"
	DefaultMetadataPlugin  = "sqlite"
	DefaultAssetPlugin     = "local"
	// DefaultRootKeysURL publishes the keys that sign wallet objects callbacks
	DefaultRootKeysURL = "https://pay.google.com/gp/m/issuer/keys"
)

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config   *yaml.Node      `yaml:"config,omitempty"`
	Database *databaseConfig `yaml:"database,omitempty"`
}

// databaseConfig holds one section per plugin type. Each section may name
// the plugin to use and carry option maps keyed by plugin name.
type databaseConfig struct {
	Metadata map[string]any `yaml:"metadata,omitempty"`
	Assets   map[string]any `yaml:"assets,omitempty"`
	Cache    map[string]any `yaml:"cache,omitempty"`
}

type Config struct {
	DatabasePath    string `yaml:"databasePath"    split_words:"true"`
	MetadataPlugin  string `yaml:"metadataPlugin"  split_words:"true"`
	AssetPlugin     string `yaml:"assetPlugin"     split_words:"true"`
	CachePlugin     string `yaml:"cachePlugin"     split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	PublicURL       string `yaml:"publicUrl"       envconfig:"PUBLIC_URL"`
	TlsCertFilePath string `yaml:"tlsCertFilePath" envconfig:"TLS_CERT_FILE_PATH"`
	TlsKeyFilePath  string `yaml:"tlsKeyFilePath"  envconfig:"TLS_KEY_FILE_PATH"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
	SyncTimeout     string `yaml:"syncTimeout"     split_words:"true"`
	Port            uint   `yaml:"port"`
	MetricsPort     uint   `yaml:"metricsPort"     split_words:"true"`
	SyncWorkers     int    `yaml:"syncWorkers"     split_words:"true"`

	// Certificate pool
	MasterSecret       string `yaml:"masterSecret"       split_words:"true"`
	CertificatePool    bool   `yaml:"certificatePool"    split_words:"true"`
	FallbackPolicy     string `yaml:"fallbackPolicy"     split_words:"true"`
	FallbackDir        string `yaml:"fallbackDir"        split_words:"true"`
	FallbackPassTypeID string `yaml:"fallbackPassTypeId" envconfig:"FALLBACK_PASS_TYPE_ID"`
	FallbackTeamID     string `yaml:"fallbackTeamId"     envconfig:"FALLBACK_TEAM_ID"`
	WWDRCertificate    string `yaml:"wwdrCertificate"    envconfig:"WWDR_CERTIFICATE"`

	// Push delivery
	APNsProduction bool `yaml:"apnsProduction" envconfig:"APNS_PRODUCTION"`
	PushWorkers    int  `yaml:"pushWorkers"    split_words:"true"`

	// Wallet objects platform
	IssuerID           string   `yaml:"issuerId"           envconfig:"ISSUER_ID"`
	ServiceAccountFile string   `yaml:"serviceAccountFile" split_words:"true"`
	SaveOrigins        []string `yaml:"saveOrigins"        split_words:"true"`
	RootKeysURL        string   `yaml:"rootKeysUrl"        envconfig:"ROOT_KEYS_URL"`
	CallbackSkipVerify bool     `yaml:"callbackSkipVerify" split_words:"true"`
	NotificationLimit  int      `yaml:"notificationLimit"  split_words:"true"`

	TracingEnabled bool `yaml:"tracingEnabled" split_words:"true"`
	TracingStdout  bool `yaml:"tracingStdout"  split_words:"true"`
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultShutdownTimeout)
	}
	return d
}

// SyncTimeoutDuration returns the parsed per-platform sync timeout
func (c *Config) SyncTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.SyncTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultSyncTimeout)
	}
	return d
}

// WalletObjectsEnabled reports whether the second platform is configured
func (c *Config) WalletObjectsEnabled() bool {
	return c.IssuerID != "" && c.ServiceAccountFile != ""
}

func (c *Config) validate() error {
	if _, err := certmanager.ParseFallbackPolicy(c.FallbackPolicy); err != nil {
		return err
	}
	for name, value := range map[string]string{
		"shutdownTimeout": c.ShutdownTimeout,
		"syncTimeout":     c.SyncTimeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	if c.ServiceAccountFile != "" && c.IssuerID == "" {
		return errors.New("issuerId is required with serviceAccountFile")
	}
	return nil
}

// ListPlugins prints the registered plugins of the given type name when the
// selected plugin is "list"
func ListPlugins(typeName string, selected string) error {
	if selected != "list" {
		return nil
	}
	pluginType, ok := plugin.PluginTypeFromName(typeName)
	if !ok {
		return fmt.Errorf("unknown plugin type: %s", typeName)
	}
	fmt.Printf("Available %s plugins:\n", typeName)
	for _, p := range plugin.GetPlugins(pluginType) {
		fmt.Printf("  %s: %s\n", p.Name, p.Description)
	}
	return ErrPluginListRequested
}

var globalConfig = defaultConfig()

func defaultConfig() *Config {
	return &Config{
		DatabasePath:      ".passsync",
		MetadataPlugin:    DefaultMetadataPlugin,
		AssetPlugin:       DefaultAssetPlugin,
		BindAddr:          "0.0.0.0",
		PublicURL:         "http://localhost:8080",
		ShutdownTimeout:   DefaultShutdownTimeout,
		SyncTimeout:       DefaultSyncTimeout,
		Port:              8080,
		MetricsPort:       12799,
		SyncWorkers:       8,
		CertificatePool:   true,
		FallbackPolicy:    string(certmanager.FallbackWarn),
		PushWorkers:       16,
		RootKeysURL:       DefaultRootKeysURL,
		NotificationLimit: 3,
	}
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.passsync/passsync.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".passsync", "passsync.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/passsync/passsync.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/passsync/passsync.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	err := envconfig.Process("passsync", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	if err := globalConfig.validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func loadConfigFile(configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	// If config section exists, use it for main config
	if tempCfg.Config != nil {
		switch {
		case tempCfg.Config.Kind == yaml.MappingNode:
			// Only keys present in the section overlay the defaults
			if err := tempCfg.Config.Decode(globalConfig); err != nil {
				return fmt.Errorf("error parsing config section: %w", err)
			}
		case tempCfg.Config.ShortTag() == "!!null":
			// An empty section keeps the defaults
		default:
			return errors.New("error parsing config section: expected a map")
		}
	} else if err := yaml.Unmarshal(buf, globalConfig); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	if tempCfg.Database == nil {
		return nil
	}
	pluginConfig := make(map[string]map[string]map[string]any)
	sections := []struct {
		typeName string
		section  map[string]any
		selected *string
	}{
		{"metadata", tempCfg.Database.Metadata, &globalConfig.MetadataPlugin},
		{"assets", tempCfg.Database.Assets, &globalConfig.AssetPlugin},
		{"cache", tempCfg.Database.Cache, &globalConfig.CachePlugin},
	}
	for _, s := range sections {
		if s.section == nil {
			continue
		}
		options := pluginSection(s.typeName, s.section, s.selected)
		if existing, ok := pluginConfig[s.typeName]; ok {
			maps.Copy(existing, options)
		} else {
			pluginConfig[s.typeName] = options
		}
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf(
				"error processing plugin config: %w",
				err,
			)
		}
	}
	return nil
}

// pluginSection extracts the selected plugin name and the per-plugin option
// maps from one database section
func pluginSection(
	typeName string,
	section map[string]any,
	selected *string,
) map[string]map[string]any {
	// Extract plugin name if specified
	if pluginVal, exists := section["plugin"]; exists {
		if pluginName, ok := pluginVal.(string); ok {
			*selected = pluginName
		}
	}
	ret := make(map[string]map[string]any)
	for k, v := range section {
		if k == "plugin" {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			ret[k] = val
		case map[any]any:
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			ret[k] = stringAnyMap
		default:
			// Log skipped non-map config entries
			fmt.Fprintf(os.Stderr, "warning: skipping %s config entry %q: expected map, got %T\n", typeName, k, v)
		}
	}
	return ret
}

func GetConfig() *Config {
	return globalConfig
}
