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

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/blinklabs-io/passsync/database/plugin/cache"
)

const (
	DefaultBlockCacheSize = 64 << 20
	DefaultIndexCacheSize = 32 << 20
)

// CacheStoreBadger is a cache tier kept in badger. Processes sharing a host
// share it through the data directory; an empty directory keeps it in memory.
type CacheStoreBadger struct {
	db             *badger.DB
	logger         *slog.Logger
	gcTicker       *time.Ticker
	gcStopCh       chan struct{}
	dataDir        string
	gcWg           sync.WaitGroup
	blockCacheSize uint64
	indexCacheSize uint64
	gcEnabled      bool
}

// NewWithOptions creates a badger cache store. The database is opened by Start()
func NewWithOptions(opts ...BadgerOptionFunc) (*CacheStoreBadger, error) {
	c := &CacheStoreBadger{
		gcEnabled:      true,
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return c, nil
}

// Start implements the plugin.Plugin interface
func (c *CacheStoreBadger) Start() error {
	var badgerOpts badger.Options
	if c.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(c.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(c.dataDir, "cache")).
			WithBlockCacheSize(int64(c.blockCacheSize)). //nolint:gosec // blockCacheSize is controlled and reasonable
			WithIndexCacheSize(int64(c.indexCacheSize)). //nolint:gosec // indexCacheSize is controlled and reasonable
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(c.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return err
	}
	c.db = db
	if c.gcEnabled && c.dataDir != "" {
		c.gcTicker = time.NewTicker(5 * time.Minute)
		c.gcStopCh = make(chan struct{})
		c.gcWg.Add(1)
		go c.cacheGc(c.gcTicker, c.gcStopCh)
	}
	return nil
}

func (c *CacheStoreBadger) cacheGc(t *time.Ticker, stop <-chan struct{}) {
	defer c.gcWg.Done()
	for {
		select {
		case <-t.C:
			for {
				// Run it again if it just ran successfully
				err := c.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					c.logger.Warn(
						fmt.Sprintf("cache DB: GC failure: %s", err),
						"component", "database",
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// Stop implements the plugin.Plugin interface
func (c *CacheStoreBadger) Stop() error {
	return c.Close()
}

func (c *CacheStoreBadger) Close() error {
	if c.gcTicker != nil {
		c.gcTicker.Stop()
		close(c.gcStopCh)
		c.gcWg.Wait()
		c.gcTicker = nil
	}
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *CacheStoreBadger) Get(_ context.Context, key string) ([]byte, error) {
	if c.db == nil {
		return nil, errors.New("badger cache: not started")
	}
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, cache.ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

// Set stores a value. Badger expiry has one second resolution.
func (c *CacheStoreBadger) Set(
	_ context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) error {
	if c.db == nil {
		return errors.New("badger cache: not started")
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (c *CacheStoreBadger) Delete(_ context.Context, keys ...string) error {
	if c.db == nil {
		return errors.New("badger cache: not started")
	}
	return c.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}
