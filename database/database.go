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

package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/blinklabs-io/passsync/database/plugin"
	"github.com/blinklabs-io/passsync/database/plugin/asset"
	_ "github.com/blinklabs-io/passsync/database/plugin/asset/aws"
	_ "github.com/blinklabs-io/passsync/database/plugin/asset/gcs"
	_ "github.com/blinklabs-io/passsync/database/plugin/asset/local"
	"github.com/blinklabs-io/passsync/database/plugin/cache"
	_ "github.com/blinklabs-io/passsync/database/plugin/cache/badger"
	_ "github.com/blinklabs-io/passsync/database/plugin/cache/redis"
	"github.com/blinklabs-io/passsync/database/plugin/metadata"
	_ "github.com/blinklabs-io/passsync/database/plugin/metadata/mysql"
	_ "github.com/blinklabs-io/passsync/database/plugin/metadata/postgres"
	_ "github.com/blinklabs-io/passsync/database/plugin/metadata/sqlite"
)

const (
	DefaultMetadataPlugin = "sqlite"
	DefaultAssetPlugin    = "local"
)

var ErrNotFound = errors.New("record not found")

// Config selects the storage plugins. An empty CachePlugin runs without a
// shared cache tier.
type Config struct {
	Logger         *slog.Logger
	DataDir        string
	MetadataPlugin string
	AssetPlugin    string
	CachePlugin    string
}

type Database struct {
	logger   *slog.Logger
	metadata metadata.MetadataStore
	assets   asset.AssetStore
	cache    cache.CacheStore
	// notifyMutex serializes quota checks made by this process
	notifyMutex sync.Mutex
}

// New starts the configured storage plugins. A non-empty DataDir overrides the
// data-dir option of the metadata and asset plugins.
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	metadataPlugin := cmp.Or(config.MetadataPlugin, DefaultMetadataPlugin)
	assetPlugin := cmp.Or(config.AssetPlugin, DefaultAssetPlugin)
	if config.DataDir != "" {
		if err := plugin.SetPluginOption(
			plugin.PluginTypeMetadata,
			metadataPlugin,
			"data-dir",
			config.DataDir,
		); err != nil {
			return nil, err
		}
		if err := plugin.SetPluginOption(
			plugin.PluginTypeAsset,
			assetPlugin,
			"data-dir",
			filepath.Join(config.DataDir, "assets"),
		); err != nil {
			return nil, err
		}
	}
	metadataDb, err := metadata.New(metadataPlugin)
	if err != nil {
		return nil, err
	}
	assetStore, err := asset.New(assetPlugin)
	if err != nil {
		_ = metadataDb.Close()
		return nil, err
	}
	var cacheStore cache.CacheStore
	if config.CachePlugin != "" {
		cacheStore, err = cache.New(config.CachePlugin)
		if err != nil {
			_ = metadataDb.Close()
			_ = assetStore.Close()
			return nil, err
		}
	}
	db := &Database{
		logger:   config.Logger,
		metadata: metadataDb,
		assets:   assetStore,
		cache:    cacheStore,
	}
	db.init()
	return db, nil
}

func (d *Database) init() {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Assets returns the underlying asset store instance
func (d *Database) Assets() asset.AssetStore {
	return d.assets
}

// Cache returns the shared cache tier, or nil when none is configured
func (d *Database) Cache() cache.CacheStore {
	return d.cache
}

func (d *Database) db(ctx context.Context) *gorm.DB {
	return d.metadata.DB().WithContext(ctx)
}

// UploadAsset stores a public file and returns its URL
func (d *Database) UploadAsset(
	ctx context.Context,
	path string,
	data []byte,
) (string, error) {
	return d.assets.Put(ctx, path, data, asset.ContentType(path))
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.cache != nil {
		err = errors.Join(err, d.cache.Close())
	}
	err = errors.Join(err, d.assets.Close())
	err = errors.Join(err, d.metadata.Close())
	return err
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// isDuplicateKey reports unique constraint violations. Drivers without error
// translation are matched on their message.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}
