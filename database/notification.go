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
	"time"

	"gorm.io/gorm"

	"github.com/blinklabs-io/passsync/database/models"
)

// ErrNotificationDenied is returned by RecordNotificationIf when allow rejects
// the send
var ErrNotificationDenied = errors.New("notification denied")

// NotificationsSince counts notifications sent to an object at or after since
func (d *Database) NotificationsSince(
	ctx context.Context,
	objectID string,
	since time.Time,
) (int64, error) {
	var count int64
	err := d.db(ctx).
		Model(&models.NotificationLog{}).
		Where("object_id = ? AND sent_at >= ?", objectID, since.UTC()).
		Count(&count).Error
	return count, err
}

// RecordNotificationIf counts the notifications sent to an object within
// window of now, and records a new one only when allow accepts that count.
// Checks from this process are serialized. Concurrent processes sharing the
// database may both pass the check before either records.
func (d *Database) RecordNotificationIf(
	ctx context.Context,
	objectID string,
	now time.Time,
	window time.Duration,
	allow func(sent int64) bool,
) error {
	now = now.UTC()
	d.notifyMutex.Lock()
	defer d.notifyMutex.Unlock()
	return d.db(ctx).Transaction(func(tx *gorm.DB) error {
		var sent int64
		err := tx.Model(&models.NotificationLog{}).
			Where("object_id = ? AND sent_at > ?", objectID, now.Add(-window)).
			Count(&sent).Error
		if err != nil {
			return err
		}
		if !allow(sent) {
			return ErrNotificationDenied
		}
		return tx.Create(&models.NotificationLog{
			ObjectID: objectID,
			SentAt:   now,
		}).Error
	})
}

// PruneNotificationLog deletes log rows older than cutoff
func (d *Database) PruneNotificationLog(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	result := d.db(ctx).
		Where("sent_at < ?", cutoff.UTC()).
		Delete(&models.NotificationLog{})
	return result.RowsAffected, result.Error
}
