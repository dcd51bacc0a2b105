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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeMetadata PluginType = iota + 1
	PluginTypeAsset
	PluginTypeCache
)

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeMetadata:
		return "metadata"
	case PluginTypeAsset:
		return "assets"
	case PluginTypeCache:
		return "cache"
	default:
		return ""
	}
}

// PluginTypeFromName is the inverse of PluginTypeName
func PluginTypeFromName(name string) (PluginType, bool) {
	for _, t := range []PluginType{PluginTypeMetadata, PluginTypeAsset, PluginTypeCache} {
		if PluginTypeName(t) == name {
			return t, true
		}
	}
	return 0, false
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota + 1
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	// CustomEnvVar replaces the generated PASSSYNC_<TYPE>_<PLUGIN>_<OPTION> name
	CustomEnvVar string
	Type         PluginOptionType
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var pluginEntries []PluginEntry

// Register adds a plugin entry. It is meant to be called from init()
func Register(pluginEntry PluginEntry) {
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered entries of a plugin type
func GetPlugins(pluginType PluginType) []PluginEntry {
	ret := []PluginEntry{}
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	return ret
}

// GetPlugin builds a new instance of the named plugin from its current options
func GetPlugin(pluginType PluginType, name string) Plugin {
	for _, p := range pluginEntries {
		if p.Type == pluginType && p.Name == name {
			return p.NewFromOptionsFunc()
		}
	}
	return nil
}

func (o *PluginOption) envVarName(pluginType PluginType, pluginName string) string {
	if o.CustomEnvVar != "" {
		return o.CustomEnvVar
	}
	parts := []string{
		"PASSSYNC",
		PluginTypeName(pluginType),
		pluginName,
		o.Name,
	}
	ret := strings.ToUpper(strings.Join(parts, "_"))
	return strings.ReplaceAll(ret, "-", "_")
}

func (o *PluginOption) flagName(pluginType PluginType, pluginName string) string {
	return fmt.Sprintf(
		"%s-%s-%s",
		PluginTypeName(pluginType),
		pluginName,
		o.Name,
	)
}

// ProcessConfig applies plugin settings from a config file. The map is keyed
// by plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	for typeName, plugins := range pluginConfig {
		pluginType, ok := PluginTypeFromName(typeName)
		if !ok {
			return fmt.Errorf("unknown plugin type: %s", typeName)
		}
		for pluginName, options := range plugins {
			for optionName, value := range options {
				if err := SetPluginOption(pluginType, pluginName, optionName, normalizeValue(value)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin settings from environment variables
func ProcessEnvVars() error {
	for i := range pluginEntries {
		p := &pluginEntries[i]
		for _, opt := range p.Options {
			val, ok := os.LookupEnv(opt.envVarName(p.Type, p.Name))
			if !ok {
				continue
			}
			var value any
			switch opt.Type {
			case PluginOptionTypeString:
				value = val
			case PluginOptionTypeBool:
				b, err := strconv.ParseBool(val)
				if err != nil {
					return fmt.Errorf("invalid bool for %s: %w", opt.envVarName(p.Type, p.Name), err)
				}
				value = b
			case PluginOptionTypeInt:
				n, err := strconv.Atoi(val)
				if err != nil {
					return fmt.Errorf("invalid int for %s: %w", opt.envVarName(p.Type, p.Name), err)
				}
				value = n
			case PluginOptionTypeUint:
				n, err := strconv.ParseUint(val, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid uint for %s: %w", opt.envVarName(p.Type, p.Name), err)
				}
				value = n
			}
			if err := SetPluginOption(p.Type, p.Name, opt.Name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// PopulateCmdlineOptions adds a flag for every plugin option
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	for i := range pluginEntries {
		p := &pluginEntries[i]
		for _, opt := range p.Options {
			name := opt.flagName(p.Type, p.Name)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				if !ok {
					return fmt.Errorf("invalid destination type for option %s", name)
				}
				def, _ := opt.DefaultValue.(string)
				fs.StringVar(dest, name, def, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				if !ok {
					return fmt.Errorf("invalid destination type for option %s", name)
				}
				def, _ := opt.DefaultValue.(bool)
				fs.BoolVar(dest, name, def, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				if !ok {
					return fmt.Errorf("invalid destination type for option %s", name)
				}
				def, _ := opt.DefaultValue.(int)
				fs.IntVar(dest, name, def, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				if !ok {
					return fmt.Errorf("invalid destination type for option %s", name)
				}
				def, _ := opt.DefaultValue.(uint64)
				fs.Uint64Var(dest, name, def, opt.Description)
			default:
				return fmt.Errorf("unknown plugin option type %d for option %s", opt.Type, name)
			}
		}
	}
	return nil
}

// normalizeValue maps YAML scalar types onto the option types
func normalizeValue(value any) any {
	switch v := value.(type) {
	case int64:
		return int(v)
	case uint:
		return uint64(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return value
}
