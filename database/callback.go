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
	"time"

	"gorm.io/gorm/clause"

	"github.com/blinklabs-io/passsync/database/models"
)

// RecordCallbackNonce stores a callback nonce and reports whether this is its
// first occurrence
func (d *Database) RecordCallbackNonce(
	ctx context.Context,
	nonce *models.CallbackNonce,
) (bool, error) {
	if nonce.ReceivedAt.IsZero() {
		nonce.ReceivedAt = time.Now().UTC()
	}
	result := d.db(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(nonce)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ForgetCallbackNonce removes a nonce so a failed callback can be redelivered
func (d *Database) ForgetCallbackNonce(ctx context.Context, nonce string) error {
	return d.db(ctx).
		Where("nonce = ?", nonce).
		Delete(&models.CallbackNonce{}).Error
}

// PruneCallbackNonces deletes nonces received before cutoff
func (d *Database) PruneCallbackNonces(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	result := d.db(ctx).
		Where("received_at < ?", cutoff.UTC()).
		Delete(&models.CallbackNonce{})
	return result.RowsAffected, result.Error
}
