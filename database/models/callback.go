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

package models

import "time"

// CallbackNonce records a processed walletobjects callback
type CallbackNonce struct {
	ReceivedAt time.Time `gorm:"index"`
	Nonce      string    `gorm:"primaryKey;size:191"`
	EventType  string    `gorm:"size:32"`
	ObjectID   string    `gorm:"size:255"`
}

func (CallbackNonce) TableName() string {
	return "callback_nonce"
}

// NotificationLog is one holder notification sent for a walletobjects
// object. Rows inside the rolling window count against the quota.
type NotificationLog struct {
	SentAt   time.Time `gorm:"not null;index:idx_notification_object_sent,priority:2"`
	ObjectID string    `gorm:"size:255;not null;index:idx_notification_object_sent,priority:1"`
	ID       uint      `gorm:"primarykey"`
}

func (NotificationLog) TableName() string {
	return "notification_log"
}
