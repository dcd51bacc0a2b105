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

package asset

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/blinklabs-io/passsync/database/plugin"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrInvalidKey    = errors.New("invalid asset key")
)

// AssetStore holds publicly served files such as rendered strip images
type AssetStore interface {
	Close() error
	// Put stores data under key and returns its public URL
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// New returns the started asset plugin selected by name
func New(pluginName string) (AssetStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeAsset, pluginName)
	if err != nil {
		return nil, err
	}
	assetStore, ok := p.(AssetStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement AssetStore interface",
			pluginName,
		)
	}
	return assetStore, nil
}

// CleanKey normalizes an asset key and rejects keys escaping the store root
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// ContentType guesses the content type of a key from its extension
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	case ".pkpass":
		return "application/vnd.apple.pkpass"
	default:
		return "application/octet-stream"
	}
}

// JoinURL appends a key to a base URL
func JoinURL(base string, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}
