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
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Txn coordinates a metadata transaction with the asset writes made on its
// behalf. Assets uploaded through the transaction are deleted again on
// rollback, and assets queued as obsolete are deleted after commit.
type Txn struct {
	ctx         context.Context
	db          *Database
	metadataTxn *gorm.DB
	uploaded    []string
	obsolete    []string
	lock        sync.Mutex
	finished    bool
	readWrite   bool
}

func NewTxn(ctx context.Context, db *Database, readWrite bool) *Txn {
	return &Txn{
		ctx:         ctx,
		db:          db,
		metadataTxn: db.metadata.DB().WithContext(ctx).Begin(),
		readWrite:   readWrite,
	}
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(ctx context.Context, readWrite bool) *Txn {
	return NewTxn(ctx, d, readWrite)
}

func (t *Txn) DB() *Database {
	return t.db
}

// Metadata returns the underlying metadata transaction handle
func (t *Txn) Metadata() *gorm.DB {
	return t.metadataTxn
}

// PutAsset uploads an asset that is removed again if the transaction rolls back
func (t *Txn) PutAsset(key string, data []byte, contentType string) (string, error) {
	if !t.readWrite {
		return "", errors.New("transaction is read-only")
	}
	url, err := t.db.assets.Put(t.ctx, key, data, contentType)
	if err != nil {
		return "", err
	}
	t.lock.Lock()
	t.uploaded = append(t.uploaded, key)
	t.lock.Unlock()
	return url, nil
}

// DeleteAssetOnCommit queues an asset for deletion once the transaction commits
func (t *Txn) DeleteAssetOnCommit(key string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.obsolete = append(t.obsolete, key)
}

// Do executes the specified function in the context of the transaction. Any errors returned will result
// in the transaction being rolled back
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if err2 := t.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return nil
	}
	// No need to commit for read-only, but we do want to free up resources
	if !t.readWrite {
		return t.rollback()
	}
	if err := t.metadataTxn.Commit().Error; err != nil {
		t.deleteAssets(t.uploaded)
		t.finished = true
		return err
	}
	t.finished = true
	t.deleteAssets(t.obsolete)
	return nil
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	err := t.metadataTxn.Rollback().Error
	if errors.Is(err, gorm.ErrInvalidTransaction) {
		// Already finished by the driver
		err = nil
	}
	t.deleteAssets(t.uploaded)
	return err
}

// deleteAssets is best effort. Leftover files are unreferenced, not corrupt.
func (t *Txn) deleteAssets(keys []string) {
	// The request context may already be cancelled at this point
	ctx := context.WithoutCancel(t.ctx)
	for _, key := range keys {
		if err := t.db.assets.Delete(ctx, key); err != nil {
			t.db.logger.Debug(
				"failed to delete asset",
				"component", "database",
				"key", key,
				"error", err,
			)
		}
	}
}

// Release releases transaction resources. For read-write transactions, this
// is equivalent to Rollback. Use this in defer statements for clean resource
// cleanup. Errors are logged but not returned, making this safe for deferred
// calls.
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"component", "database",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
